package extractor

import (
	"regexp"
	"strings"
)

var separatorCellRegex = regexp.MustCompile(`^:?-+:?$`)

// ParseTable parses the first pipe-delimited markdown table in text.
//
// The header is the line directly above the first separator row (|---|---|).
// Data rows follow until a line without a pipe. Rows shorter than the header
// are padded with empty cells and cells beyond the header are dropped. A text
// without a table yields an empty slice.
func ParseTable(text string) []Row {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i := 1; i < len(lines); i++ {
		if !isSeparatorRow(lines[i]) || !strings.Contains(lines[i-1], "|") {
			continue
		}

		headers := splitRow(lines[i-1])
		rows := make([]Row, 0)
		for _, line := range lines[i+1:] {
			if !strings.Contains(line, "|") {
				break
			}
			cells := splitRow(line)
			row := make(Row, len(headers))
			for j, header := range headers {
				if j < len(cells) {
					row[header] = cells[j]
				} else {
					row[header] = ""
				}
			}
			rows = append(rows, row)
		}
		return rows
	}

	return []Row{}
}

func isSeparatorRow(line string) bool {
	if !strings.Contains(line, "|") {
		return false
	}
	cells := splitRow(line)
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if !separatorCellRegex.MatchString(cell) {
			return false
		}
	}
	return true
}

func splitRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}
