// Command lookupd enriches JSON log lines with values from lookup tables.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"lookupd/internal/home"
	"lookupd/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	logger *slog.Logger
	filter *logging.ComponentFilterHandler
	stdin  io.Reader
	stdout io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout}

	rootCmd := &cobra.Command{
		Use:           "lookupd",
		Short:         "Lookup table enrichment for JSON log lines",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			levelFlag, _ := cmd.Flags().GetString("log-level")
			components, _ := cmd.Flags().GetStringToString("component-level")

			var level slog.Level
			if err := level.UnmarshalText([]byte(levelFlag)); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			a.filter = logging.NewComponentFilterHandler(newBaseHandler(stderr), level)
			for component, l := range components {
				var cl slog.Level
				if err := cl.UnmarshalText([]byte(l)); err != nil {
					return fmt.Errorf("--component-level %s: %w", component, err)
				}
				a.filter.SetLevel(component, cl)
			}
			a.logger = slog.New(a.filter)
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().String("home", "", "home directory (default: platform config dir)")
	rootCmd.PersistentFlags().String("config", "", "configuration file (default: lookupd.json in the home directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringToString("component-level", nil, "per-component log level, e.g. reload=debug")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(
		newServeCmd(a),
		newCheckCmd(a),
		newQueryCmd(a),
		newTablesCmd(a),
		versionCmd,
	)
	return rootCmd
}

// newBaseHandler writes colored logs to a terminal and plain text otherwise.
func newBaseHandler(w io.Writer) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
		if !noColor {
			w = colorable.NewColorable(f)
		}
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug, // filtering done by ComponentFilterHandler
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
}

// resolveHome returns the --home directory, or the platform default.
func resolveHome(cmd *cobra.Command) (home.Dir, error) {
	if p, _ := cmd.Flags().GetString("home"); p != "" {
		return home.New(p), nil
	}
	return home.Default()
}

// configPath returns the --config flag, or the config file in the home
// directory.
func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	hd, err := resolveHome(cmd)
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return hd.ConfigPath(), nil
}
