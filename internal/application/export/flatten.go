// Package export implements bulk CSV export of patent records: the chunked
// export engine, the row flattening it feeds the CSV codec, and the runner
// that turns an export into a stored artifact with lifecycle events.
package export

import (
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/pkg/csvenc"
)

// CSV column names, in output order.  These are part of the export file
// format; changing them changes what downstream spreadsheets see.
const (
	colID           = "id"
	colPatentNumber = "patentNumber"
	colTitle        = "title"
	colAssignee     = "assignee"
	colFilingDate   = "filingDate"
)

// Flatten converts one record to its CSV row: the five export columns, with
// a missing assignee or filing date rendered as the empty string.
func Flatten(r patent.Record) csvenc.Row {
	return csvenc.Row{
		{Name: colID, Value: r.ID},
		{Name: colPatentNumber, Value: r.PatentNumber},
		{Name: colTitle, Value: r.Title},
		{Name: colAssignee, Value: r.Assignee},
		{Name: colFilingDate, Value: r.FilingDateString()},
	}
}

// FlattenAll converts records in order.
func FlattenAll(records []patent.Record) []csvenc.Row {
	rows := make([]csvenc.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Flatten(r))
	}
	return rows
}
