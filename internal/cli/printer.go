package cli

import (
	"fmt"
	"io"

	"github.com/emory-app/voicechat/internal/session"
	"github.com/emory-app/voicechat/internal/transcript"
)

// transcriptPrinter renders session snapshots as a line-oriented chat log.
// A message is printed once, after it has settled.
type transcriptPrinter struct {
	out     io.Writer
	status  session.Status
	errMsg  string
	muted   bool
	printed map[string]bool
}

func newTranscriptPrinter(out io.Writer) *transcriptPrinter {
	return &transcriptPrinter{out: out, status: session.StatusIdle, printed: map[string]bool{}}
}

func (p *transcriptPrinter) Render(snap session.Session) {
	if snap.Status != p.status {
		p.status = snap.Status
		if label := statusLabel(snap.Status); label != "" {
			fmt.Fprintf(p.out, "· %s\n", label)
		}
	}
	if snap.Error != "" && snap.Error != p.errMsg {
		fmt.Fprintf(p.out, "! %s\n", snap.Error)
	}
	p.errMsg = snap.Error
	if snap.Muted != p.muted {
		p.muted = snap.Muted
		if snap.Muted {
			fmt.Fprintln(p.out, "· microphone muted")
		} else {
			fmt.Fprintln(p.out, "· microphone live")
		}
	}

	last := len(snap.Messages) - 1
	for i, msg := range snap.Messages {
		if msg.Text == "" || p.printed[msg.ID] {
			continue
		}
		// The newest reply may still be streaming.
		if msg.Role == transcript.RoleAI && i == last && snap.AISpeaking {
			continue
		}
		p.printed[msg.ID] = true
		fmt.Fprintf(p.out, "%s: %s\n", speaker(msg.Role), msg.Text)
	}
}

func statusLabel(status session.Status) string {
	switch status {
	case session.StatusConnecting:
		return "connecting..."
	case session.StatusConnected:
		return "listening"
	case session.StatusAISpeaking:
		return "emory is speaking"
	case session.StatusDisconnected:
		return "disconnected"
	default:
		return ""
	}
}

func speaker(role transcript.Role) string {
	if role == transcript.RoleUser {
		return "you"
	}
	return "emory"
}
