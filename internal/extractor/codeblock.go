package extractor

import (
	"regexp"
	"strings"
)

var (
	codeFenceRegex     = regexp.MustCompile("(?is)```(?:c\\+\\+|cpp|c)(\\s.*?)```")
	makefileFenceRegex = regexp.MustCompile("(?is)```(?:makefile|make)(\\s.*?)```")
)

// ExtractCodeBlocks returns the contents of every fenced C or C++ block in
// document order, trimmed of surrounding whitespace.
//
// Callers rely on position: the first block is taken as the test script and
// the second as the test runner. Nothing in the reply guarantees that order,
// so a reply that leads with an illustrative snippet shifts both.
func ExtractCodeBlocks(text string) []string {
	return fencedBlocks(codeFenceRegex, text)
}

// extractMakefile returns the first fenced makefile block, if any
func extractMakefile(text string) string {
	blocks := fencedBlocks(makefileFenceRegex, text)
	if len(blocks) == 0 {
		return ""
	}
	return blocks[0]
}

func fencedBlocks(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}
