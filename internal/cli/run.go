package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eoql/internal/compiler"
	"github.com/roach88/eoql/internal/engine"
	"github.com/roach88/eoql/internal/query"
	"github.com/roach88/eoql/internal/store"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "run <query-file>",
		Short: "Execute a query against the assertion log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}

			mode, err := parseExecMode(modeFlag)
			if err != nil {
				return WrapExitError(ExitCommandError, "bad mode", err)
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

			st, err := store.Open(opts.Driver, opts.StorePath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open store", err)
			}
			defer st.Close()

			frames, expectations, err := loadRegistries(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load definitions", err)
			}

			f.VerboseLog("executing %s plan %s", mode, plan.Fingerprint())
			f.VerboseLog("%s", plan.SQL())

			exec := engine.New(st, frames, expectations).WithMode(mode)
			result, err := exec.Execute(cmd.Context(), plan)
			if err != nil {
				f.Error("E_EXECUTE", "execution refused", err.Error())
				return WrapExitError(ExitFailure, "execution refused", nil)
			}

			return f.Success(result)
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "annotated", "execution mode (strict|annotated|explain)")
	return cmd
}

func parseExecMode(text string) (engine.ExecMode, error) {
	switch text {
	case "strict":
		return engine.ModeStrict, nil
	case "annotated":
		return engine.ModeAnnotated, nil
	case "explain":
		return engine.ModeExplain, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", text)
	}
}
