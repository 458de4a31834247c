package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"timed-quiz-service/internal/client"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/sqlite"

	"github.com/spf13/cobra"
)

// NewWatchCmd follows the server-side history of an attempt.
func NewWatchCmd(configPath *string) *cobra.Command {
	var statePath string
	cmd := &cobra.Command{
		Use:   "watch [attempt-id]",
		Short: "Follow saves and the result of an attempt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if statePath != "" {
				cfg.Client.StatePath = statePath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else if id, err = storedAttemptID(ctx, cfg.Client.StatePath); err != nil {
				return err
			}
			if err := domain.ValidateAttemptID(id); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return client.Watch(ctx, cfg.Client.BaseURL, id, func(msg client.FeedMessage) {
				writeFeedMessage(out, msg)
			})
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "", "path of the device state file (overrides client.state_path)")
	return cmd
}

func storedAttemptID(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no attempt id given and no device state at %s", path)
	}
	state, err := sqlite.NewLocalState(path)
	if err != nil {
		return "", fmt.Errorf("open device state: %w", err)
	}
	defer state.Close()

	id, ok, err := state.AttemptID(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("no attempt recorded on this device")
	}
	return id, nil
}

func writeFeedMessage(w io.Writer, msg client.FeedMessage) {
	switch msg.Type {
	case "snapshot":
		if msg.Snapshot == nil {
			fmt.Fprintln(w, "nothing saved yet")
			return
		}
		writeSnapshot(w, "stored", *msg.Snapshot)
	case domain.EventSaved:
		if msg.Event != nil {
			writeSnapshot(w, "saved", msg.Event.Snapshot)
		}
	case domain.EventFinished:
		fmt.Fprintln(w, "finished")
		if msg.Event != nil && msg.Event.Result != nil {
			writeResult(w, *msg.Event.Result)
		}
	case "error":
		fmt.Fprintf(w, "error: %s\n", msg.Error)
	}
}

func writeSnapshot(w io.Writer, label string, snap domain.Snapshot) {
	state := "active"
	if snap.IsFinished {
		state = "finished"
	}
	fmt.Fprintf(w, "%s: %s, %d answered, %s left\n", label, state, len(snap.Answers), formatRemaining(snap.RemainingSec))
}
