package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eoql/internal/query"
)

// NewValidateCommand creates the validate command.
//
// Validation never rewrites the query. Exit code 1 means the query was
// refused; the full violation list is reported, not just the first.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <query-file>",
		Short: "Check a query against the soundness invariants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read query file", err)
			}

			if ok, problems := query.ValidateSerialized(data); !ok {
				f.Error("E_SERIALIZED", "query text is malformed", problems)
				return WrapExitError(ExitFailure, "query text is malformed", nil)
			}

			q, err := query.FromJSON(data)
			if err != nil {
				f.Error("E_DECODE", "query cannot be decoded", err.Error())
				return WrapExitError(ExitCommandError, "decode query", err)
			}

			if err := query.Validate(q); err != nil {
				var ve *query.ValidationError
				if errors.As(err, &ve) {
					lines := make([]string, len(ve.Violations))
					for i, v := range ve.Violations {
						lines[i] = v.String()
					}
					f.Error("E_VALIDATION", "query refused", strings.Join(lines, "; "))
					return WrapExitError(ExitFailure, "query refused", nil)
				}
				return WrapExitError(ExitCommandError, "validate query", err)
			}

			hash, err := q.Hash()
			if err != nil {
				return WrapExitError(ExitCommandError, "hash query", err)
			}
			return f.SuccessText("valid", map[string]any{"valid": true, "query_hash": hash})
		},
	}
}
