package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eoql/internal/compiler"
	"github.com/roach88/eoql/internal/engine"
	"github.com/roach88/eoql/internal/query"
)

// NewExplainCommand creates the explain command: the full execution path
// minus the execution. Nothing touches the log.
func NewExplainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <query-file>",
		Short: "Show how a query would execute without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}

			q, err := LoadQueryFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load query", err)
			}

			plan, err := compiler.Compile(q)
			if err != nil {
				if query.IsValidationError(err) || compiler.IsCompilationError(err) {
					f.Error("E_COMPILE", "query refused", err.Error())
					return WrapExitError(ExitFailure, "query refused", nil)
				}
				return WrapExitError(ExitCommandError, "compile query", err)
			}

			frames, expectations, err := loadRegistries(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load definitions", err)
			}

			exec := engine.New(nil, frames, expectations).WithMode(engine.ModeExplain)
			result, err := exec.Execute(cmd.Context(), plan)
			if err != nil {
				f.Error("E_EXPLAIN", "explain refused", err.Error())
				return WrapExitError(ExitFailure, "explain refused", nil)
			}

			var text strings.Builder
			text.WriteString("stages: " + strings.Join(result.Explain.Stages, " -> ") + "\n")
			for _, note := range result.Notes {
				text.WriteString("note: " + note + "\n")
			}
			text.WriteString("\n" + result.Explain.SQL)
			return f.SuccessText(text.String(), result)
		},
	}
}
