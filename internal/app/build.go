package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emory-app/voicechat/internal/audio"
	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/config"
	"github.com/emory-app/voicechat/internal/httpapi"
	"github.com/emory-app/voicechat/internal/memory"
	"github.com/emory-app/voicechat/internal/observability"
	"github.com/emory-app/voicechat/internal/rtc"
	"github.com/emory-app/voicechat/internal/voice"
)

type BuildResult struct {
	Config     config.Config
	Controller *voice.Controller
	API        *httpapi.Server
	Archive    memory.Store
	Metrics    *observability.Metrics

	// Cleanup releases the session and external resources (DB pool).
	Cleanup func() error
}

// Tokens resolves the app JWT: EMORY_TOKEN first, then the token file.
func Tokens(cfg config.Config) backend.TokenSource {
	var chain backend.ChainTokens
	if strings.TrimSpace(cfg.Token) != "" {
		chain = append(chain, backend.StaticToken(cfg.Token))
	}
	chain = append(chain, backend.FileToken{Path: cfg.TokenFile})
	return chain
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, observability.NewRegistry())

	archive, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript archive init failed: %w", err)
	}

	if _, err := audio.NewSink(cfg.PlaybackMode, cfg.PlaybackFFplayPath, cfg.PlaybackFile, logger); err != nil {
		_ = archive.Close()
		return nil, err
	}

	controller, err := voice.NewController(voice.Options{
		Backend:    backend.NewClient(cfg.APIBaseURL, Tokens(cfg), cfg.BackendTimeout),
		Microphone: audio.NewFFmpegMicrophone(cfg.MicFFmpegPath, cfg.MicInputFormat, cfg.MicDevice, logger),
		Dialer:     rtc.NewPionDialer(cfg.ICEServers, cfg.ICEGatherTimeout),
		Signaler:   rtc.NewSignaler(cfg.RealtimeURL),
		NewSink: func() (audio.Sink, error) {
			return audio.NewSink(cfg.PlaybackMode, cfg.PlaybackFFplayPath, cfg.PlaybackFile, logger)
		},
		Archive:            archive,
		Metrics:            metrics,
		Logger:             logger,
		TranscriptionModel: cfg.RealtimeTranscriptionModel,
		PersistTimeout:     cfg.BackendTimeout,
	})
	if err != nil {
		_ = archive.Close()
		return nil, err
	}

	api := httpapi.New(cfg, controller, archive, metrics, logger)

	cleanup := func() error {
		var errs []string
		api.Shutdown()
		if err := controller.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := archive.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		Controller: controller,
		API:        api,
		Archive:    archive,
		Metrics:    metrics,
		Cleanup:    cleanup,
	}, nil
}
