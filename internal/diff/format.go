package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Output formats understood by Write.
const (
	FormatText    = "text"
	FormatUnified = "unified"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
)

// Formats lists the supported output formats.
var Formats = []string{FormatText, FormatUnified, FormatJSON, FormatYAML, FormatCSV, FormatXLSX}

type document struct {
	Current Side  `json:"current" yaml:"current"`
	Other   Side  `json:"other" yaml:"other"`
	Rows    []Row `json:"rows" yaml:"rows"`
}

// Write renders the report in one of the supported formats.
func Write(w io.Writer, report *Report, renderer Renderer, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return WriteText(w, report, renderer)
	case FormatUnified:
		_, err := io.WriteString(w, report.Unified())
		return err
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document{Current: report.Current, Other: report.Other, Rows: renderer.Rows(report)})
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(document{Current: report.Current, Other: report.Other, Rows: renderer.Rows(report)}); err != nil {
			return err
		}
		return encoder.Close()
	case FormatCSV:
		return WriteCSV(w, report, renderer)
	case FormatXLSX:
		return WriteXLSX(w, report, renderer)
	default:
		return fmt.Errorf("unsupported format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteText writes an aligned side-by-side table. Changed rows are marked with "*".
func WriteText(w io.Writer, report *Report, renderer Renderer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, " \tPATH\t%s\t%s\n", labelOr(report.Current.Label, "CURRENT"), labelOr(report.Other.Label, "OTHER"))
	for _, row := range renderer.Rows(report) {
		mark := " "
		if row.Changed {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, row.Path, inline(row.Current), inline(row.Other))
	}
	return tw.Flush()
}

func inline(c Cell) string {
	if !c.Block {
		return c.Text
	}
	return strings.ReplaceAll(c.Text, "\n", "; ")
}
