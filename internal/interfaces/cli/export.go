package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
)

// Export flags.
var (
	exportKeyword  string
	exportAssignee string
	exportFrom     string
	exportTo       string
	exportOut      string
	exportUpload   bool
)

// NewExportCmd builds the export subcommand: a full chunked export of
// every match, written to a local CSV file or uploaded to the object
// store.
func NewExportCmd(connect ConnectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching patents as CSV",
		Long: `Export streams every match for the filter through the chunked export
engine. The default writes a CSV file in the working directory; --upload
stores the artifact in the object store and prints its download URL.`,
		Example: `  kipx export --keyword battery --out battery.csv
  kipx export --assignee "ACME Corp" --upload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilterFlags(exportKeyword, exportAssignee, exportFrom, exportTo)
			if err != nil {
				return err
			}

			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			stack, cleanup, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if exportUpload {
				return runExportUpload(cmd, stack, f, cliCtx.Logger)
			}
			return runExportLocal(cmd, stack, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&exportKeyword, "keyword", "", "keyword matched against title, abstract, assignee and patent number")
	fl.StringVar(&exportAssignee, "assignee", "", "exact assignee name")
	fl.StringVar(&exportFrom, "from", "", "earliest filing date (YYYY-MM-DD)")
	fl.StringVar(&exportTo, "to", "", "latest filing date (YYYY-MM-DD)")
	fl.StringVar(&exportOut, "out", "", "output file (default: patents-<timestamp>.csv)")
	fl.BoolVar(&exportUpload, "upload", false, "upload the CSV to the object store instead of writing a file")

	return cmd
}

func runExportLocal(cmd *cobra.Command, stack *Stack, f patent.Filter) error {
	csv, err := stack.Engine.ExportAll(cmd.Context(), f)
	if err != nil {
		return err
	}

	filename := exportOut
	if filename == "" {
		filename = fmt.Sprintf("patents-%s.csv", time.Now().Format("20060102-150405"))
	}
	if err := os.WriteFile(filename, []byte(csv), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Saved %d rows to %s.", strings.Count(csv, "\n"), filename))
	return nil
}

// runExportUpload runs the export as a tracked job and prints the artifact
// URL.
func runExportUpload(cmd *cobra.Command, stack *Stack, f patent.Filter, logger logging.Logger) error {
	if stack.Files == nil {
		return fmt.Errorf("no object store configured; --upload needs minio settings in the config")
	}

	runner := export.NewRunner(stack.Engine, stack.Files, nil, nil, logger)
	job, err := runner.Run(cmd.Context(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.GreenString("Export %s uploaded (%d rows).", job.ID, job.Rows))
	fmt.Fprintf(out, "Download: %s\n", job.Location)
	return nil
}
