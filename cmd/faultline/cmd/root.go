// Package cmd implements the faultline command line tool.
package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drblury/faultline"
)

const (
	flagEnvFile     = "env-file"
	flagDSN         = "dsn"
	flagTransport   = "transport"
	flagTopic       = "topic"
	flagEnvironment = "environment"
	flagOutput      = "output"
	flagVerbose     = "verbose"
)

// app carries the flag values shared by every command.
type app struct {
	v *viper.Viper
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "faultline",
		Short:         "Inspect and exercise faultline error reporting",
		Long:          `faultline resolves the error reporting configuration of a service from its environment, sends test reports and tails report topics.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return loadEnvFile(a.v.GetString(flagEnvFile))
		},
	}

	flags := root.PersistentFlags()
	flags.String(flagEnvFile, ".env", "dotenv file loaded before resolving the configuration")
	flags.String(flagDSN, "", "DSN override (default from SENTRY_DSN)")
	flags.String(flagTransport, "", "report transport override (default from FAULTLINE_TRANSPORT)")
	flags.String(flagTopic, "", "report topic override (default from FAULTLINE_TOPIC)")
	flags.String(flagEnvironment, "", "environment override (default from FAULTLINE_ENV)")
	flags.StringP(flagOutput, "o", "table", "output format: table or json")
	flags.BoolP(flagVerbose, "v", false, "log at debug level")

	root.AddCommand(
		newConfigCommand(a),
		newTestCommand(a),
		newTailCommand(a),
	)
	return root
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (a *app) options() faultline.Options {
	return faultline.Options{
		DSN:         a.v.GetString(flagDSN),
		Environment: a.v.GetString(flagEnvironment),
		Transport:   a.transportOverrides(),
	}
}

func (a *app) transportOverrides() faultline.TransportConfig {
	return faultline.TransportConfig{
		Name:  a.v.GetString(flagTransport),
		Topic: a.v.GetString(flagTopic),
	}
}

func (a *app) jsonOutput() bool {
	return a.v.GetString(flagOutput) == "json"
}

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if a.v.GetBool(flagVerbose) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
