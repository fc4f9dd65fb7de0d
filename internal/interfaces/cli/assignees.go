package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
)

// Assignees flags.
var (
	assigneesLimit  int
	assigneesOutput string
)

// NewAssigneesCmd builds the assignees subcommand: the distinct assignee
// directory, most patents first, one name per line.
func NewAssigneesCmd(connect ConnectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignees",
		Short: "List the assignee directory",
		Long: `Assignees prints the distinct assignee names known to the store, ordered
by patent count descending. The list is what populates filter dropdowns
in the UI, so it is capped; raise --limit to see more.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if assigneesLimit < 1 {
				return fmt.Errorf("--limit must be at least 1, got %d", assigneesLimit)
			}
			if assigneesOutput != "text" && assigneesOutput != "json" {
				return fmt.Errorf("unsupported output format %q (text or json)", assigneesOutput)
			}

			stack, cleanup, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := stack.Search.Assignees(cmd.Context(), assigneesLimit)
			if err != nil {
				return err
			}

			if assigneesOutput == "json" {
				return printJSON(cmd, names)
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No assignees found.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&assigneesLimit, "limit", patent.DefaultAssigneeLimit, "maximum number of assignees to list")
	fl.StringVarP(&assigneesOutput, "output", "o", "text", "output format: text or json")

	return cmd
}
