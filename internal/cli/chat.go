package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emory-app/voicechat/internal/app"
	"github.com/emory-app/voicechat/internal/backend"
	"github.com/emory-app/voicechat/internal/session"
	"github.com/emory-app/voicechat/internal/voice"
)

func NewChatCmd(deps *Dependencies) *cobra.Command {
	var emotion string
	var calendar string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a voice conversation in the terminal",
		Long: `Connect the microphone to EMORY and print the live transcript.

Type m and Enter to toggle mute, q and Enter (or Ctrl-C) to end the
conversation. The transcript is saved when the conversation ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, false)
			out := cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			built, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					logger.Warn("cleanup failed", "error", err)
				}
			}()
			controller := built.Controller

			updates, unsubscribe := controller.Subscribe(cfg.EventsBuffer)
			ended := make(chan struct{})
			rendered := make(chan struct{})
			go func() {
				defer close(rendered)
				printer := newTranscriptPrinter(out)
				signalled := false
				for snap := range updates {
					printer.Render(snap)
					if !signalled && conversationOver(snap.Status) {
						signalled = true
						close(ended)
					}
				}
			}()
			defer func() {
				unsubscribe()
				<-rendered
			}()

			err = controller.Connect(ctx, backend.StartRequest{
				SelectedEmotion: strings.TrimSpace(emotion),
				CalendarSummary: calendar,
			})
			if err != nil {
				return fmt.Errorf("%s", voice.UserMessage(err))
			}
			fmt.Fprintln(out, "· m+Enter toggles mute, q+Enter ends the conversation")

			commands := readCommands(cmd.InOrStdin())
		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case <-ended:
					break loop
				case line, ok := <-commands:
					if !ok {
						// Stdin closed; keep talking until a signal arrives.
						commands = nil
						continue
					}
					switch line {
					case "m", "mute":
						controller.ToggleMute()
					case "q", "quit", "exit":
						break loop
					}
				}
			}

			saveCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			final := controller.Disconnect(saveCtx)
			fmt.Fprintf(out, "· conversation ended (%d messages)\n", len(final.Messages))
			return nil
		},
	}

	cmd.Flags().StringVar(&emotion, "emotion", "", "Mood to open the conversation with")
	cmd.Flags().StringVar(&calendar, "calendar", "", "Calendar summary to share with EMORY")

	return cmd
}

// conversationOver reports statuses after which the chat saves and exits
// without waiting for input.
func conversationOver(status session.Status) bool {
	return status == session.StatusDisconnected || status == session.StatusError
}

// readCommands forwards trimmed, lower-cased input lines until r is exhausted.
func readCommands(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()
	return ch
}
