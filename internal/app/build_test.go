package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/config"
)

func TestTokensPreferEnvThenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("file-jwt\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := Tokens(config.Config{Token: "env-jwt", TokenFile: path}).Token()
	if err != nil || got != "env-jwt" {
		t.Fatalf("Token() = %q, %v, want env-jwt", got, err)
	}
	got, err = Tokens(config.Config{TokenFile: path}).Token()
	if err != nil || got != "file-jwt" {
		t.Fatalf("Token() = %q, %v, want file-jwt", got, err)
	}
	_, err = Tokens(config.Config{TokenFile: filepath.Join(t.TempDir(), "missing")}).Token()
	if !errors.Is(err, backend.ErrMissingToken) {
		t.Fatalf("Token() error = %v, want ErrMissingToken", err)
	}
}

func testConfig() config.Config {
	return config.Config{
		APIBaseURL:                 "http://127.0.0.1:1",
		BackendTimeout:             time.Second,
		RealtimeURL:                config.DefaultRealtimeURL,
		RealtimeTranscriptionModel: "whisper-1",
		ICEGatherTimeout:           time.Second,
		MicFFmpegPath:              "ffmpeg",
		MicInputFormat:             "pulse",
		MicDevice:                  "default",
		PlaybackMode:               "discard",
		MetricsNamespace:           "emory_voice",
		EventsBuffer:               8,
	}
}

func TestBuildWiresInMemoryArchive(t *testing.T) {
	res, err := Build(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	if res.Controller == nil || res.API == nil || res.Archive == nil {
		t.Fatalf("Build() returned incomplete result: %+v", res)
	}
	if got := res.Controller.State().Status; got != "idle" {
		t.Fatalf("initial status = %q, want idle", got)
	}
}

func TestBuildTwiceKeepsSeparateMetrics(t *testing.T) {
	first, err := Build(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	t.Cleanup(func() { _ = first.Cleanup() })
	second, err := Build(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	t.Cleanup(func() { _ = second.Cleanup() })

	second.Metrics.ActiveSessions.Set(3)

	body := scrapeMetrics(t, second)
	if !strings.Contains(body, "emory_voice_active_sessions 3") {
		t.Fatalf("second /metrics missing its gauge:\n%s", body)
	}
	if !strings.Contains(scrapeMetrics(t, first), "emory_voice_active_sessions 0") {
		t.Fatalf("first /metrics shares state with second")
	}
}

func scrapeMetrics(t *testing.T, res *BuildResult) string {
	t.Helper()
	rec := httptest.NewRecorder()
	res.API.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	return rec.Body.String()
}
