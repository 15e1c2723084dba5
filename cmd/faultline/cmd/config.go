package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/drblury/faultline"
	"github.com/drblury/faultline/internal/runtime/jsoncodec"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved client configuration",
		Long:  `Resolves the client configuration the way a service would and prints it with credentials redacted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := faultline.ResolveConfig(a.options())
			if err != nil {
				return err
			}
			rows := configRows(cfg)
			out := cmd.OutOrStdout()

			if a.jsonOutput() {
				doc := make(map[string]string, len(rows))
				for _, row := range rows {
					doc[row[0]] = row[1]
				}
				data, err := jsoncodec.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			table := tablewriter.NewWriter(out)
			table.Header("Setting", "Value")
			for _, row := range rows {
				if err := table.Append([]string{row[0], row[1]}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func configRows(cfg faultline.ClientConfig) [][2]string {
	source := "override"
	if cfg.DSNFromEnv {
		source = "SENTRY_DSN"
	}
	rows := [][2]string{
		{"dsn", cfg.DSN.Redacted()},
		{"dsn_source", source},
		{"release", cfg.Release},
		{"environment", cfg.Environment},
		{"site", cfg.Site},
		{"server_name", cfg.Name},
		{"hook_libraries", strings.Join(cfg.HookLibraries, ",")},
		{"ignored_loggers", strings.Join(cfg.IgnoredLoggers, ",")},
		{"queue_size", strconv.Itoa(cfg.QueueSize)},
	}

	tc := cfg.Transport.Redacted()
	for _, kv := range [][2]string{
		{"transport", tc.Name},
		{"topic", tc.Topic},
		{"encoding", tc.Encoding},
		{"kafka_brokers", strings.Join(tc.KafkaBrokers, ",")},
		{"kafka_consumer_group", tc.KafkaConsumerGroup},
		{"rabbitmq_url", tc.RabbitMQURL},
		{"nats_url", tc.NATSURL},
		{"http_publisher_url", tc.HTTPPublisherURL},
		{"http_server_address", tc.HTTPServerAddress},
		{"io_file", tc.IOFile},
		{"aws_region", tc.AWSRegion},
		{"aws_account_id", tc.AWSAccountID},
		{"aws_access_key_id", tc.AWSAccessKeyID},
		{"aws_secret_access_key", tc.AWSSecretAccessKey},
		{"aws_endpoint", tc.AWSEndpoint},
	} {
		if kv[1] != "" {
			rows = append(rows, kv)
		}
	}
	return rows
}
