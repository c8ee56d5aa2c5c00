package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands. Values resolve through
// viper, so each can come from the flag, an EOQL_-prefixed environment
// variable, or a config file, in that order.
type RootOptions struct {
	StorePath   string // database path or DSN
	Driver      string // "sqlite3" | "postgres"
	Definitions string // directory of CUE frame/expectation definitions
	Format      string // "json" | "text"
	Verbose     bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the eoql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "eoql",
		Short: "eoql - epistemically honest queries",
		Long: "Query an append-only assertion log without manufactured certainty:\n" +
			"conflicts are surfaced, absence is computed, and every answer names\n" +
			"the frame and time it was produced under.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix("EOQL")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if cfg := v.GetString("config"); cfg != "" {
				v.SetConfigFile(cfg)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}

			opts.StorePath = v.GetString("store")
			opts.Driver = v.GetString("driver")
			opts.Definitions = v.GetString("definitions")
			opts.Format = v.GetString("format")
			opts.Verbose = v.GetBool("verbose")

			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().String("store", "eoql.db", "database path (sqlite3) or DSN (postgres)")
	cmd.PersistentFlags().String("driver", "sqlite3", "database driver (sqlite3|postgres)")
	cmd.PersistentFlags().String("definitions", "", "directory of CUE frame/expectation definitions")
	cmd.PersistentFlags().String("format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	cmd.PersistentFlags().String("config", "", "config file path")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
