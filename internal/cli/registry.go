package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eoql/internal/ir"
)

// NewRegistryCommand creates the registry command group for inspecting
// frames and expectations.
func NewRegistryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect frame and expectation definitions",
	}
	cmd.AddCommand(newFramesCommand(opts))
	cmd.AddCommand(newExpectationsCommand(opts))
	return cmd
}

func newFramesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "List registered frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			frames, _, err := loadRegistries(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load definitions", err)
			}

			type frameInfo struct {
				FrameID  string   `json:"frame_id"`
				Versions []string `json:"versions"`
			}
			var infos []frameInfo
			var lines []string
			for _, id := range frames.ListFrames() {
				versions, err := frames.ListVersions(id)
				if err != nil {
					continue
				}
				infos = append(infos, frameInfo{FrameID: id, Versions: versions})
				lines = append(lines, fmt.Sprintf("%s (%s)", id, strings.Join(versions, ", ")))
			}
			return f.SuccessText(strings.Join(lines, "\n"), infos)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "compare <frame-id> <version-a> <version-b>",
		Short: "Diff the config of two frame versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			frames, _, err := loadRegistries(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load definitions", err)
			}

			diff, err := frames.Compare(args[0], args[1], args[2])
			if err != nil {
				f.Error("E_REGISTRY", "compare refused", err.Error())
				return WrapExitError(ExitFailure, "compare refused", nil)
			}

			if diff.Same {
				return f.SuccessText("identical config", diff)
			}
			var lines []string
			for _, k := range sortedKeys(diff.Added) {
				lines = append(lines, fmt.Sprintf("+ %s = %v", k, ir.ToAny(diff.Added[k])))
			}
			for _, k := range sortedKeys(diff.Removed) {
				lines = append(lines, fmt.Sprintf("- %s = %v", k, ir.ToAny(diff.Removed[k])))
			}
			changed := make([]string, 0, len(diff.Changed))
			for k := range diff.Changed {
				changed = append(changed, k)
			}
			sort.Strings(changed)
			for _, k := range changed {
				c := diff.Changed[k]
				lines = append(lines, fmt.Sprintf("~ %s: %v -> %v",
					k, ir.ToAny(c.Was), ir.ToAny(c.Now)))
			}
			return f.SuccessText(strings.Join(lines, "\n"), diff)
		},
	})

	return cmd
}

func newExpectationsCommand(opts *RootOptions) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "expectations",
		Short: "List expectation rules active at an instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			_, expectations, err := loadRegistries(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load definitions", err)
			}

			ts := asOf
			if ts == "" {
				ts = time.Now().UTC().Format(time.RFC3339)
			}

			active := expectations.ListActive(ts)
			var lines []string
			for _, def := range active {
				lines = append(lines, fmt.Sprintf("%s@%s expects %s %s",
					def.ExpectationID, def.Version, def.Rule.ClaimType, def.Rule.Frequency))
			}
			if len(lines) == 0 {
				lines = append(lines, "no active expectations")
			}
			return f.SuccessText(strings.Join(lines, "\n"), active)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "instant to evaluate activity at (RFC 3339, default now)")
	return cmd
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func sortedKeys(m map[string]ir.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
