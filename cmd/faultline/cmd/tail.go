package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/cobra"

	"github.com/drblury/faultline"
	configpkg "github.com/drblury/faultline/internal/runtime/config"
	errspkg "github.com/drblury/faultline/internal/runtime/errors"
	"github.com/drblury/faultline/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/faultline/internal/runtime/logging"
	"github.com/drblury/faultline/internal/runtime/report"
)

func newTailCommand(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print reports as they arrive on the report topic",
		Long: `Subscribes to the configured report topic and prints one line per report.
Transports without a subscriber side, such as sentry, cannot be tailed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := configpkg.ResolveTransport(a.transportOverrides())
			if err != nil {
				return err
			}
			if caps := faultline.DefaultTransportRegistry.GetCapabilities(tc.Name); caps.Name != "" && !caps.SupportsSubscribe {
				return fmt.Errorf("%w: %s", errspkg.ErrSubscribeMissing, tc.Name)
			}

			logger := loggingpkg.NewWatermillAdapter(faultline.NewSlogServiceLogger(a.logger(cmd)))
			tr, err := faultline.DefaultTransportRegistry.Build(cmd.Context(), &tc, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = tr.Publisher.Close()
			}()
			if tr.Subscriber == nil {
				return fmt.Errorf("%w: %s", errspkg.ErrSubscribeMissing, tc.Name)
			}
			defer func() {
				_ = tr.Subscriber.Close()
			}()

			messages, err := tr.Subscriber.Subscribe(cmd.Context(), tc.Topic)
			if err != nil {
				return err
			}
			return printReports(cmd.OutOrStdout(), messages, count, a.jsonOutput())
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many reports (0 follows until interrupted)")
	return cmd
}

// printReports acks every message it prints or skips as undecodable, so a
// malformed payload is never redelivered. A message is nacked only when
// writing to w fails. It returns when messages closes or count reports were
// printed.
func printReports(w io.Writer, messages <-chan *message.Message, count int, asJSON bool) error {
	printed := 0
	for msg := range messages {
		r, _, err := report.Unmarshal(msg.Payload)
		if err != nil {
			if _, werr := fmt.Fprintf(w, "skipping message %s: %v\n", msg.UUID, err); werr != nil {
				msg.Nack()
				return werr
			}
			msg.Ack()
			continue
		}
		if err := printReport(w, r, asJSON); err != nil {
			msg.Nack()
			return err
		}
		msg.Ack()

		printed++
		if count > 0 && printed >= count {
			return nil
		}
	}
	if count > 0 && printed < count {
		return errors.New("report stream closed")
	}
	return nil
}

func printReport(w io.Writer, r *report.Report, asJSON bool) error {
	if asJSON {
		data, err := jsoncodec.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	source := r.ServerName
	if source == "" {
		source = "-"
	}
	_, err := fmt.Fprintf(w, "%s  %-7s  %s  %s  %s\n",
		r.Timestamp.UTC().Format(time.RFC3339), r.Level, r.EventID, source, r.Title())
	return err
}
