package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects a renderer.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat converts a flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be text, table or json)", s)
	}
}

// Write renders entries in the given format.
func Write(w io.Writer, format Format, entries []Entry) error {
	switch format {
	case FormatTable:
		return WriteTable(w, entries)
	case FormatJSON:
		return WriteJSON(w, entries)
	default:
		return WriteText(w, entries)
	}
}

// WriteText writes one line per entry.
func WriteText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.Line()); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable renders entries as a rounded table.
func WriteTable(w io.Writer, entries []Entry) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Date", "Title", "By", "Type", "Link"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.RawDate, e.Title, strings.Join(e.Creators, ", "), string(e.Category), e.URL})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, WidthMax: 48},
		{Number: 3, WidthMax: 40},
	})
	tw.Render()
	return nil
}

// WriteJSON writes entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
