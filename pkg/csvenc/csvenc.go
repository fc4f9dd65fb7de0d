// Package csvenc implements the CSV dialect used for patent exports.
//
// The dialect is deliberately strict and simple: every value is quoted,
// embedded double quotes are doubled, and embedded line breaks are replaced
// by spaces, so a row never spans more than one line.  Rows are joined by
// "\n" with no trailing newline, and empty input produces empty output
// (no header row).  encoding/csv is not used because it quotes minimally,
// always terminates rows, and preserves line breaks inside fields.
package csvenc

import (
	"io"
	"strings"
)

// Field is one named column value.
type Field struct {
	Name  string
	Value string
}

// Row is an ordered list of fields.  The first row of an encode call
// defines the header and the column order for every following row.
type Row []Field

// Get returns the value for the named column and whether it is present.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// escaper doubles quotes and flattens line breaks.  Each line-break
// character is replaced independently, so "\r\n" becomes two spaces.
var escaper = strings.NewReplacer(`"`, `""`, "\n", " ", "\r", " ")

// Encode renders rows as CSV text.  Empty input yields "".
func Encode(rows []Row) string {
	if len(rows) == 0 {
		return ""
	}
	var sb strings.Builder
	writeRows(&sb, rows)
	return sb.String()
}

// EncodeTo streams the same output as Encode to w.
func EncodeTo(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	sw, ok := w.(io.StringWriter)
	if !ok {
		var sb strings.Builder
		writeRows(&sb, rows)
		_, err := io.WriteString(w, sb.String())
		return err
	}
	return writeRowsErr(sw, rows)
}

// writeRows renders the header from the first row's field names, then one
// line per row with values resolved by header name (absent fields render
// as "").
func writeRows(sb *strings.Builder, rows []Row) {
	header := rows[0]
	for i, f := range header {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
	}
	for _, row := range rows {
		sb.WriteByte('\n')
		for i, f := range header {
			if i > 0 {
				sb.WriteByte(',')
			}
			v, _ := row.Get(f.Name)
			sb.WriteByte('"')
			sb.WriteString(escaper.Replace(v))
			sb.WriteByte('"')
		}
	}
}

func writeRowsErr(w io.StringWriter, rows []Row) error {
	header := rows[0]
	for i, f := range header {
		if i > 0 {
			if _, err := w.WriteString(","); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(f.Name); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
		for i, f := range header {
			if i > 0 {
				if _, err := w.WriteString(","); err != nil {
					return err
				}
			}
			v, _ := row.Get(f.Name)
			if _, err := w.WriteString(`"` + escaper.Replace(v) + `"`); err != nil {
				return err
			}
		}
	}
	return nil
}
