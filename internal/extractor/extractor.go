package extractor

import (
	"strings"

	"github.com/tildaslashalef/unitforge/internal/loggy"
)

// Extractor converts raw model replies into ExtractionResults.
// It holds no state between calls and is safe for concurrent use.
type Extractor struct {
	logger *loggy.Logger
}

// NewExtractor creates a new Extractor
func NewExtractor(logger *loggy.Logger) *Extractor {
	return &Extractor{
		logger: logger,
	}
}

// Extract normalizes a model reply. It never fails: input that cannot be
// parsed yields an empty result.
func (e *Extractor) Extract(text string) ExtractionResult {
	result, _ := e.ExtractWithStrategy(text)
	return result
}

// ExtractWithStrategy is Extract that also reports which path produced the result.
//
// A JSON mirror with a table_rows list wins. Otherwise the first markdown
// table supplies the rows and fenced code blocks are assigned by position.
// In both paths a single test script is shared by every test case.
func (e *Extractor) ExtractWithStrategy(text string) (ExtractionResult, Strategy) {
	var result ExtractionResult

	if strings.TrimSpace(text) == "" {
		finalize(&result)
		return result, StrategyNone
	}

	if obj, ok := ExtractJSON(text); ok {
		if rows, ok := rowsFromJSON(obj); ok {
			script := stringField(obj, KeyTestScript)
			result.TestRunnerScript = stringField(obj, KeyTestRunner)
			result.MakefileContent = stringField(obj, KeyMakefileContent, "makefile")

			// Mirrors often omit the long code fields; the fenced blocks still carry them.
			if script == "" || result.TestRunnerScript == "" {
				blocks := ExtractCodeBlocks(text)
				if script == "" && len(blocks) > 0 {
					script = blocks[0]
				}
				if result.TestRunnerScript == "" && len(blocks) > 1 {
					result.TestRunnerScript = blocks[1]
				}
			}
			if result.MakefileContent == "" {
				result.MakefileContent = extractMakefile(text)
			}

			result.TestCases = make([]TestCase, 0, len(rows))
			for _, row := range rows {
				result.TestCases = append(result.TestCases, rowToTestCase(row, script))
			}
			finalize(&result)

			e.logger.Debug("Extracted test cases from JSON mirror",
				"test_cases", len(result.TestCases),
				"has_runner", result.TestRunnerScript != "")
			return result, StrategyJSON
		}
		e.logger.Debug("JSON object found without table rows, falling back to markdown")
	}

	rows := ParseTable(text)
	blocks := ExtractCodeBlocks(text)

	var script string
	if len(blocks) > 0 {
		script = blocks[0]
	}
	if len(blocks) > 1 {
		result.TestRunnerScript = blocks[1]
	}
	result.MakefileContent = extractMakefile(text)

	result.TestCases = make([]TestCase, 0, len(rows))
	for _, row := range rows {
		result.TestCases = append(result.TestCases, rowToTestCase(row, script))
	}
	finalize(&result)

	e.logger.Debug("Extracted test cases from markdown",
		"test_cases", len(result.TestCases),
		"code_blocks", len(blocks))
	return result, StrategyMarkdown
}
