package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/faultline"
)

const defaultTestMessage = "faultline test report"

func newTestCommand(a *app) *cobra.Command {
	var (
		level   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "test [message]",
		Short: "Send a test report and wait for delivery",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := defaultTestMessage
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				msg = args[0]
			}

			var sendErr error
			client, err := faultline.NewClient(a.options(),
				faultline.WithClientLogger(faultline.NewSlogServiceLogger(a.logger(cmd))),
				faultline.WithClientHooks(faultline.ClientHooks{
					OnSendError: func(_ *faultline.Report, err error) { sendErr = err },
				}),
			)
			if err != nil {
				return err
			}

			id := client.CaptureMessage(cmd.Context(), msg,
				faultline.WithLevel(level),
				faultline.WithTag("source", "faultline-cli"),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			flushErr := client.Flush(ctx)
			closeErr := client.Close()

			if id == "" {
				return errors.New("test report was dropped")
			}
			if err := errors.Join(flushErr, sendErr, closeErr); err != nil {
				return fmt.Errorf("test report %s: %w", id, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent test report %s\n", id)
			return err
		},
	}
	cmd.Flags().StringVar(&level, "level", faultline.LevelInfo, "report level")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for delivery")
	return cmd
}
