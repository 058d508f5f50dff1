// Package extractor turns free-form model replies into normalized unit test records
package extractor

// Conventional column headers requested from the model. Table rows are keyed by
// the literal header text, so these must match the prompt's output format.
const (
	ColTestCaseID     = "Test Case ID"
	ColFunctionName   = "Unit Test Function Name"
	ColDescription    = "Description"
	ColInputData      = "Input Data"
	ColExpectedOutput = "Expected Output / Behavior"
	ColType           = "Type (Positive / Negative)"
)

// Keys of the JSON mirror appended to the end of a reply
const (
	KeyTableRows       = "table_rows"
	KeyTestScript      = "test_script_c"
	KeyTestRunner      = "test_runner_c"
	KeyMakefileContent = "makefile_content"
)

// Test case classifications
const (
	TypePositive = "Positive"
	TypeNegative = "Negative"
)

// coverageAreas is the declared set of coverage categories the prompt asks for.
// It describes intent only and is never measured.
var coverageAreas = []string{
	"Statement Coverage",
	"Branch Coverage",
	"Condition Coverage",
	"Boundary Value Coverage",
	"Error Path Coverage",
	"Data Flow Coverage",
}

// CoverageAreas returns a copy of the declared coverage category labels
func CoverageAreas() []string {
	out := make([]string, len(coverageAreas))
	copy(out, coverageAreas)
	return out
}

// TestCase is one normalized generated unit test
type TestCase struct {
	ID             string `json:"id"`
	FunctionName   string `json:"function_name"`
	Description    string `json:"description"`
	InputData      string `json:"input_data"`
	ExpectedOutput string `json:"expected_output"`
	Type           string `json:"type"`
	TestCode       string `json:"test_code"`
}

// Summary aggregates an extraction result
type Summary struct {
	TotalTests      int      `json:"total_tests"`
	FunctionsTested []string `json:"functions_tested"`
	CoverageAreas   []string `json:"coverage_areas"`
}

// ExtractionResult is the normalized bundle produced from one model reply
type ExtractionResult struct {
	TestCases        []TestCase `json:"test_cases"`
	TestRunnerScript string     `json:"test_runner_script"`
	MakefileContent  string     `json:"makefile_content"`
	Summary          Summary    `json:"summary"`
}

// TestScript returns the shared test script text, which is attached to every
// test case. It is empty when there are no test cases.
func (r ExtractionResult) TestScript() string {
	for _, tc := range r.TestCases {
		if tc.TestCode != "" {
			return tc.TestCode
		}
	}
	return ""
}

// Row is one markdown table row keyed by the literal header cell text
type Row map[string]string

// Strategy names the extraction path that produced a result
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyJSON     Strategy = "json"
	StrategyMarkdown Strategy = "markdown"
)
