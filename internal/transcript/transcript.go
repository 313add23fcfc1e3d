package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emory-app/voicechat/internal/protocol"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Speaking int

const (
	SpeakingUnchanged Speaking = iota
	SpeakingStarted
	SpeakingStopped
)

// Outcome reports what applying one event changed.
type Outcome struct {
	Changed  bool
	Speaking Speaking
	Error    string
	Ignored  bool
}

// Transcript builds the conversation from realtime server events.
//
// It is not safe for concurrent use; the owner serializes Apply calls. The
// slice returned by Messages is never modified afterwards, every mutation
// installs a fresh backing array.
type Transcript struct {
	messages []Message
	activeAI string
	now      func() time.Time
}

func New() *Transcript {
	return &Transcript{now: time.Now}
}

// Apply folds one server event into the transcript.
func (t *Transcript) Apply(ev protocol.ServerEvent) Outcome {
	switch ev.Type {
	case protocol.TypeInputTranscriptionCompleted:
		if ev.Transcript == "" {
			return Outcome{}
		}
		t.append(Message{
			ID:        newID(RoleUser),
			Role:      RoleUser,
			Text:      ev.Transcript,
			CreatedAt: t.now(),
		})
		return Outcome{Changed: true}

	case protocol.TypeResponseCreated:
		id := newID(RoleAI)
		t.activeAI = id
		t.append(Message{
			ID:        id,
			Role:      RoleAI,
			CreatedAt: t.now(),
		})
		return Outcome{Changed: true, Speaking: SpeakingStarted}

	case protocol.TypeAudioTranscriptDelta:
		// Deltas without a preceding response.created have nowhere to go and are dropped.
		if ev.Delta == "" || t.activeAI == "" {
			return Outcome{}
		}
		return Outcome{Changed: t.update(t.activeAI, func(m *Message) { m.Text += ev.Delta })}

	case protocol.TypeAudioTranscriptDone:
		if ev.Transcript == "" || t.activeAI == "" {
			return Outcome{}
		}
		return Outcome{Changed: t.update(t.activeAI, func(m *Message) { m.Text = ev.Transcript })}

	case protocol.TypeResponseDone:
		t.activeAI = ""
		return Outcome{Speaking: SpeakingStopped}

	case protocol.TypeError:
		return Outcome{Error: ev.ErrorMessage()}

	default:
		return Outcome{Ignored: true}
	}
}

// Messages returns the current transcript. Callers must not modify it.
func (t *Transcript) Messages() []Message {
	return t.messages
}

// ActiveAIMessageID is the id of the AI message still streaming, or empty.
func (t *Transcript) ActiveAIMessageID() string {
	return t.activeAI
}

// NonEmpty returns the messages carrying visible text.
func (t *Transcript) NonEmpty() []Message {
	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (t *Transcript) Reset() {
	t.messages = nil
	t.activeAI = ""
}

func (t *Transcript) append(m Message) {
	next := make([]Message, len(t.messages), len(t.messages)+1)
	copy(next, t.messages)
	t.messages = append(next, m)
}

func (t *Transcript) update(id string, fn func(*Message)) bool {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ID != id {
			continue
		}
		next := make([]Message, len(t.messages))
		copy(next, t.messages)
		fn(&next[i])
		t.messages = next
		return true
	}
	return false
}

func newID(role Role) string {
	return string(role) + "-" + uuid.NewString()
}
