package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emory-app/voicechat/internal/config"
)

type Dependencies struct {
	Config config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "emory-voice",
		Short:         "Talk with EMORY in realtime",
		Long:          "Voice client for EMORY: streams the microphone to the realtime provider, shows the live transcript and saves the conversation when it ends.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewChatCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))

	return rootCmd
}

// newLogger builds the slog logger for a command; json selects the JSON handler.
func newLogger(out io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
