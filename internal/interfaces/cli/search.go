package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

// Search flags.
var (
	searchKeyword     string
	searchAssignee    string
	searchFrom        string
	searchTo          string
	searchPage        int
	searchOutput      string
	searchInteractive bool
)

// NewSearchCmd builds the search subcommand. One-shot mode prints a single
// result page; --interactive starts a paging browser on stdin.
func NewSearchCmd(connect ConnectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search patents by keyword, assignee and filing date",
		Long: `Search matches the keyword against title, abstract, assignee and patent
number, optionally narrowed by an exact assignee name and a filing-date
range. Results come back newest filing first, ten per page.`,
		Example: `  kipx search --keyword battery --from 2024-01-01 --page 2
  kipx search --assignee "ACME Corp" -i`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilterFlags(searchKeyword, searchAssignee, searchFrom, searchTo)
			if err != nil {
				return err
			}
			if searchPage < 1 {
				return fmt.Errorf("--page must be at least 1, got %d", searchPage)
			}
			if searchOutput != "table" && searchOutput != "json" {
				return fmt.Errorf("unsupported output format %q (table or json)", searchOutput)
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

			if searchInteractive {
				return runSearchInteractive(cmd, stack, f, cliCtx.Logger)
			}
			return runSearchOnce(cmd, stack, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&searchKeyword, "keyword", "", "keyword matched against title, abstract, assignee and patent number")
	fl.StringVar(&searchAssignee, "assignee", "", "exact assignee name")
	fl.StringVar(&searchFrom, "from", "", "earliest filing date (YYYY-MM-DD)")
	fl.StringVar(&searchTo, "to", "", "latest filing date (YYYY-MM-DD)")
	fl.IntVar(&searchPage, "page", 1, "result page to show")
	fl.StringVarP(&searchOutput, "output", "o", "table", "output format: table or json")
	fl.BoolVarP(&searchInteractive, "interactive", "i", false, "browse result pages interactively")

	return cmd
}

// parseFilterFlags assembles a patent.Filter from the shared filter flags,
// validating date syntax and ordering.
func parseFilterFlags(keyword, assignee, from, to string) (patent.Filter, error) {
	f := patent.Filter{
		Keyword:  strings.TrimSpace(keyword),
		Assignee: strings.TrimSpace(assignee),
	}
	if from != "" {
		t, err := common.ParseDate(from)
		if err != nil {
			return patent.Filter{}, fmt.Errorf("invalid --from date %q (must be YYYY-MM-DD)", from)
		}
		f.FilingFrom = &t
	}
	if to != "" {
		t, err := common.ParseDate(to)
		if err != nil {
			return patent.Filter{}, fmt.Errorf("invalid --to date %q (must be YYYY-MM-DD)", to)
		}
		f.FilingTo = &t
	}
	if f.FilingFrom != nil && f.FilingTo != nil && f.FilingFrom.After(*f.FilingTo) {
		return patent.Filter{}, fmt.Errorf("--from %s is after --to %s", from, to)
	}
	return f, nil
}

func runSearchOnce(cmd *cobra.Command, stack *Stack, f patent.Filter) error {
	res, err := stack.Search.Search(cmd.Context(), f, searchPage)
	if err != nil {
		return err
	}

	if searchOutput == "json" {
		return printJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "No matching patents found.")
		return nil
	}
	fmt.Fprint(out, formatResultTable(res))
	return nil
}

// formatResultTable renders one result page: a global row number, patent
// number, truncated title, assignee and filing date, with a page footer.
func formatResultTable(res search.ResultPage) string {
	var buf strings.Builder
	buf.WriteString("\n=== Patent Search Results ===\n\n")

	table := tablewriter.NewWriter(&buf)
	table.Header([]string{"#", "Patent", "Title", "Assignee", "Filed"})

	for i, r := range res.Rows {
		table.Append([]string{
			strconv.Itoa((res.Page-1)*search.PageSize + i + 1),
			r.PatentNumber,
			truncateString(r.Title, 48),
			truncateString(r.Assignee, 28),
			common.FormatDate(r.FilingDate),
		})
	}

	table.Render()

	buf.WriteString(fmt.Sprintf("\nPage %d of %d (%d patents)\n", res.Page, search.PageCount(res.Total), res.Total))
	return buf.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// browseHelp is printed on entry and on demand in the interactive browser.
const browseHelp = `Commands:
  n          next page
  p          previous page
  g <page>   go to page
  e          export current page to a CSV file
  a          export all matches to a CSV file
  q          quit`

// runSearchInteractive submits the filter to a browse session and reads
// paging commands from stdin until q or EOF.
func runSearchInteractive(cmd *cobra.Command, stack *Stack, f patent.Filter, logger logging.Logger) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	session := search.NewSession(ctx, stack.Search, logger)
	defer session.Close()

	if _, err := session.Submit(ctx, f); err != nil {
		fmt.Fprintln(out, color.RedString("search failed: %v", err))
	} else {
		printSessionPage(out, session)
	}
	fmt.Fprintln(out, browseHelp)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "kipx> ")
		if !scanner.Scan() {
			break
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "q", "quit", "exit":
			return nil

		case "n":
			if !session.CanGoNext() {
				fmt.Fprintln(out, "Already on the last page.")
				continue
			}
			gotoPage(ctx, out, session, session.Page()+1)

		case "p":
			if !session.CanGoPrev() {
				fmt.Fprintln(out, "Already on the first page.")
				continue
			}
			gotoPage(ctx, out, session, session.Page()-1)

		case "g":
			if len(args) < 2 {
				fmt.Fprintln(out, "Usage: g <page>")
				continue
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Fprintf(out, "Not a page number: %q\n", args[1])
				continue
			}
			if session.TotalPages() == 0 {
				fmt.Fprintln(out, "No pages to browse.")
				continue
			}
			if n < 1 || n > session.TotalPages() {
				fmt.Fprintf(out, "Page %d is out of range (1-%d).\n", n, session.TotalPages())
				continue
			}
			gotoPage(ctx, out, session, n)

		case "e":
			exportSessionPage(out, stack, session)

		case "a":
			exportSessionAll(ctx, out, stack, session)

		case "h", "help", "?":
			fmt.Fprintln(out, browseHelp)

		default:
			fmt.Fprintf(out, "Unknown command %q. Type h for help.\n", args[0])
		}
	}

	fmt.Fprintln(out)
	return scanner.Err()
}

func gotoPage(ctx context.Context, out io.Writer, session *search.Session, n int) {
	if _, err := session.GoToPage(ctx, n); err != nil {
		fmt.Fprintln(out, color.RedString("search failed: %v", err))
		return
	}
	printSessionPage(out, session)
}

func printSessionPage(out io.Writer, session *search.Session) {
	res := session.Result()
	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "No matching patents found.")
		return
	}
	fmt.Fprint(out, formatResultTable(res))
}

// exportSessionPage writes the rows currently on screen to a page-numbered
// CSV file in the working directory.
func exportSessionPage(out io.Writer, stack *Stack, session *search.Session) {
	res := session.Result()
	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "Nothing to export on this page.")
		return
	}
	filename := fmt.Sprintf("patents-page-%d.csv", session.Page())
	if err := os.WriteFile(filename, []byte(stack.Engine.ExportRows(res.Rows)), 0o644); err != nil {
		fmt.Fprintln(out, color.RedString("export failed: %v", err))
		return
	}
	fmt.Fprintln(out, color.GreenString("Saved %d rows to %s.", len(res.Rows), filename))
}

// exportSessionAll runs the full chunked export for the session filter and
// writes it to a timestamped CSV file.
func exportSessionAll(ctx context.Context, out io.Writer, stack *Stack, session *search.Session) {
	csv, err := stack.Engine.ExportAll(ctx, session.Filter())
	if err != nil {
		fmt.Fprintln(out, color.RedString("export failed: %v", err))
		return
	}
	filename := fmt.Sprintf("patents-%s.csv", time.Now().Format("20060102-150405"))
	if err := os.WriteFile(filename, []byte(csv), 0o644); err != nil {
		fmt.Fprintln(out, color.RedString("export failed: %v", err))
		return
	}
	fmt.Fprintln(out, color.GreenString("Saved %d rows to %s.", strings.Count(csv, "\n"), filename))
}
