// Command hivectl is the administrative front-end for the hive
// routing core: create-hive, create-dimension, create-node. Modeled
// on the cobra root-command wiring of cmd/bd/main.go, trimmed to this
// module's much smaller surface (spec.md §6: "The CLI has no other
// surface").
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// argumentError marks a positional-argument validation failure, which
// must exit 2 per spec.md §6, distinct from a domain or driver error
// at runtime, which exits 1.
type argumentError struct{ err error }

func (e *argumentError) Error() string { return e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

var (
	logLevel  string
	logFormat string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hivectl",
		Short:         "Administer a sharded hive's dimensions, nodes, and directory tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	viper.SetEnvPrefix("HIVEDB")
	viper.AutomaticEnv()

	root.AddCommand(newCreateHiveCmd())
	root.AddCommand(newCreateDimensionCmd())
	root.AddCommand(newCreateNodeCmd())
	return root
}

func configureLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var argErr *argumentError
		if errors.As(err, &argErr) {
			fmt.Fprintln(os.Stderr, "error:", argErr.Error())
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
