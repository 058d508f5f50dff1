// Package utils holds terminal output helpers shared by the CLI commands
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Theme groups the colors used for CLI output
var Theme = struct {
	Success     text.Colors
	Info        text.Colors
	Warning     text.Colors
	Error       text.Colors
	Heading     text.Colors
	Subtle      text.Colors
	Key         text.Colors
	Code        text.Colors
	Title       text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
}{
	Success:     text.Colors{text.FgGreen},
	Info:        text.Colors{text.FgBlue},
	Warning:     text.Colors{text.FgYellow},
	Error:       text.Colors{text.FgRed},
	Heading:     text.Colors{text.FgHiCyan, text.Bold},
	Subtle:      text.Colors{text.FgHiBlack},
	Key:         text.Colors{text.Bold},
	Code:        text.Colors{text.FgHiGreen},
	Title:       text.Colors{text.FgHiCyan, text.Bold},
	TableHeader: text.Colors{text.FgHiBlue, text.Bold},
	TableBorder: text.Colors{text.FgBlue},
	TableRow:    text.Colors{text.FgWhite},
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
}

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Println(Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Println(Theme.Success.Sprint("✓ ") + message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Println(Theme.Info.Sprint("ℹ ") + message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println(Theme.Warning.Sprint("⚠ ") + message)
}

// PrintError prints an error message to stderr
func PrintError(message string) {
	fmt.Fprintln(os.Stderr, Theme.Error.Sprint("✗ ")+message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Printf("%s: %s\n", Theme.Key.Sprint(key), value)
}

// PrintKeyValueWithColor prints a key-value pair with a colored value
func PrintKeyValueWithColor(key, value string, colors text.Colors) {
	fmt.Printf("%s: %s\n", Theme.Key.Sprint(key), colors.Sprint(value))
}

// PrintDivider prints a horizontal divider
func PrintDivider() {
	fmt.Println(Theme.Subtle.Sprint(strings.Repeat("-", 51)))
}

// CodeBlock indents code by four spaces and colors it
func CodeBlock(code string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return Theme.Code.Sprint(strings.Join(lines, "\n"))
}

// NewTable creates a table writer styled with Theme that renders to w
func NewTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if title != "" {
		t.SetTitle(title)
	}

	style := table.StyleLight
	style.Color.Header = Theme.TableHeader
	style.Color.Border = Theme.TableBorder
	style.Color.Separator = Theme.TableBorder
	style.Color.Row = Theme.TableRow
	style.Color.RowAlternate = Theme.TableAltRow
	style.Title.Colors = Theme.Title
	style.Title.Align = text.AlignCenter
	style.Options.SeparateRows = false
	t.SetStyle(style)
	return t
}

// RenderTable writes headers and rows to w. Cells wider than maxWidth are
// truncated; zero disables truncation.
func RenderTable(w io.Writer, title string, headers []string, rows [][]string, maxWidth int) {
	t := NewTable(w, title)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = Truncate(cell, maxWidth)
		}
		t.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter}
	}
	t.SetColumnConfigs(configs)
	t.Render()
}

// PrintTable renders a table to stdout
func PrintTable(title string, headers []string, rows [][]string) {
	RenderTable(os.Stdout, title, headers, rows, 60)
}

// Truncate shortens s to at most n runes on a single line, marking the cut with an ellipsis
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// FormatDuration rounds d for display
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// FormatBytes renders a size in B, KiB or MiB
func FormatBytes(n int64) string {
	switch {
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	}
}
