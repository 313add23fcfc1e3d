package session

import (
	"testing"

	"github.com/emory-app/voicechat/internal/transcript"
)

func TestStateStartsIdle(t *testing.T) {
	s := NewState()
	if got := s.Get().Status; got != StatusIdle {
		t.Fatalf("Status = %q, want %q", got, StatusIdle)
	}
}

func TestStateUpdateRunsHook(t *testing.T) {
	s := NewState()
	var prevStatus, nextStatus Status
	s.SetChangeHook(func(prev, next Session) {
		prevStatus, nextStatus = prev.Status, next.Status
	})

	got := s.Update(func(cur *Session) {
		cur.Status = StatusConnecting
		cur.ID = "sess-1"
	})
	if got.Status != StatusConnecting || got.ID != "sess-1" {
		t.Fatalf("Update() = %+v", got)
	}
	if prevStatus != StatusIdle || nextStatus != StatusConnecting {
		t.Fatalf("hook saw %q -> %q", prevStatus, nextStatus)
	}
	if s.Get().UpdatedAt.IsZero() {
		t.Fatalf("UpdatedAt should be set")
	}
}

func TestSubscribeReceivesCurrentAndUpdates(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe(4)
	defer cancel()

	first := <-ch
	if first.Status != StatusIdle {
		t.Fatalf("first snapshot status = %q, want idle", first.Status)
	}

	s.Update(func(cur *Session) { cur.Status = StatusConnected })
	if got := (<-ch).Status; got != StatusConnected {
		t.Fatalf("snapshot status = %q, want connected", got)
	}
}

func TestSubscribeSlowReaderSeesLatest(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe(1)
	defer cancel()

	s.Update(func(cur *Session) { cur.Status = StatusConnecting })
	s.Update(func(cur *Session) { cur.Status = StatusConnected })
	s.Update(func(cur *Session) { cur.Status = StatusAISpeaking })

	if got := (<-ch).Status; got != StatusAISpeaking {
		t.Fatalf("snapshot status = %q, want latest %q", got, StatusAISpeaking)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewState()
	ch, cancel := s.Subscribe(2)
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	if n := s.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", n)
	}
	s.Update(func(cur *Session) { cur.Status = StatusConnected })
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	s := NewState()
	s.Update(func(cur *Session) {
		cur.Messages = []transcript.Message{{ID: "user-1", Role: transcript.RoleUser, Text: "hi"}}
	})
	before := s.Get()
	s.Update(func(cur *Session) {
		cur.Messages = append(append([]transcript.Message(nil), cur.Messages...), transcript.Message{ID: "ai-1"})
	})
	if len(before.Messages) != 1 {
		t.Fatalf("earlier snapshot changed: %+v", before.Messages)
	}
}

func TestStatusLive(t *testing.T) {
	live := []Status{StatusConnecting, StatusConnected, StatusAISpeaking}
	for _, st := range live {
		if !st.Live() {
			t.Fatalf("%q should be live", st)
		}
	}
	for _, st := range []Status{StatusIdle, StatusError, StatusDisconnected} {
		if st.Live() {
			t.Fatalf("%q should not be live", st)
		}
	}
}
