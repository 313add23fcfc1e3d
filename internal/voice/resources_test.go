package voice

import (
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/emory-app/voicechat/internal/audio"
)

func TestResourceSetReleaseIsIdempotent(t *testing.T) {
	log := &eventLog{}
	track, err := audio.NewTrack("mic")
	if err != nil {
		t.Fatalf("NewTrack() error = %v", err)
	}
	r := &resourceSet{
		stream:  audio.NewStream([]*audio.Track{track}, func() { log.add("mic.stop") }),
		peer:    &fakePeer{log: log},
		channel: &fakeChannel{log: log},
		sink:    &fakeSink{log: log},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.release(slog.Default())
		}()
	}
	wg.Wait()

	want := []string{"dc.close", "pc.close", "mic.stop", "sink.detach"}
	if got := log.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("release = %v, want %v", got, want)
	}
	if !track.Stopped() {
		t.Fatalf("track not stopped")
	}
}

func TestResourceSetReleaseSkipsMissingHandles(t *testing.T) {
	log := &eventLog{}
	r := &resourceSet{peer: &fakePeer{log: log}}
	r.release(slog.Default())

	var nilSet *resourceSet
	nilSet.release(slog.Default())

	if got := log.snapshot(); !slices.Equal(got, []string{"pc.close"}) {
		t.Fatalf("release = %v, want only pc.close", got)
	}
}
