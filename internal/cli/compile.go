package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eoql/internal/compiler"
	"github.com/roach88/eoql/internal/query"
)

// NewCompileCommand creates the compile command. The plan prints in full;
// it is an auditable artifact, not an internal detail.
func NewCompileCommand(opts *RootOptions) *cobra.Command {
	var showStages bool

	cmd := &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Compile a query into its staged SQL plan",
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

			stageNames := make([]string, len(plan.Stages))
			for i, s := range plan.Stages {
				stageNames[i] = s.Name
			}

			data := map[string]any{
				"sql":         plan.SQL(),
				"stages":      stageNames,
				"notes":       plan.Notes,
				"query_hash":  plan.QueryHash,
				"fingerprint": plan.Fingerprint(),
			}

			var text strings.Builder
			text.WriteString(plan.SQL())
			text.WriteString("\n")
			if showStages || opts.Verbose {
				text.WriteString(fmt.Sprintf("\nstages: %s\n", strings.Join(stageNames, " -> ")))
				for _, note := range plan.Notes {
					text.WriteString("note: " + note + "\n")
				}
				text.WriteString("fingerprint: " + plan.Fingerprint() + "\n")
			}
			return f.SuccessText(strings.TrimRight(text.String(), "\n"), data)
		},
	}

	cmd.Flags().BoolVar(&showStages, "stages", false, "print stage order and notes")
	return cmd
}
