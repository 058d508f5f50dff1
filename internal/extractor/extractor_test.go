package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/unitforge/internal/loggy"
)

const markdownReply = `Here are the generated tests.

| Test Case ID | Description | Input Data | Expected Output / Behavior | Type (Positive / Negative) | Unit Test Function Name |
|---|---|---|---|---|---|
| TC_001 | Adds positives | 1, 2 | 3 | Positive | test_add |
| | Adds negatives | -1, -2 | -3 | Positive | test_add |
| TC_003 | Divide by zero | 1, 0 | error code | Negative | test_divide |

` + "```c\n#include \"unity.h\"\nvoid test_add(void) { TEST_ASSERT_EQUAL(3, add(1, 2)); }\n```\n\n" +
	"```c\nint main(void) { UNITY_BEGIN(); RUN_TEST(test_add); return UNITY_END(); }\n```\n\n" +
	"```makefile\ntest:\n\tgcc -o runner test_runner.c && ./runner\n```\n"

func TestExtract(t *testing.T) {
	logger := loggy.NewNoopLogger()
	extractor := NewExtractor(logger)

	t.Run("empty input", func(t *testing.T) {
		result, strategy := extractor.ExtractWithStrategy(" \n\t ")

		assert.Equal(t, StrategyNone, strategy)
		assert.NotNil(t, result.TestCases)
		assert.Empty(t, result.TestCases)
		assert.Empty(t, result.TestRunnerScript)
		assert.Empty(t, result.MakefileContent)
		assert.Equal(t, 0, result.Summary.TotalTests)
		assert.Empty(t, result.Summary.FunctionsTested)
		assert.Equal(t, CoverageAreas(), result.Summary.CoverageAreas)
	})

	t.Run("fenced json mirror", func(t *testing.T) {
		input := "prose ```json\n" +
			`{"table_rows":[{"Test Case ID":"TC_1","Unit Test Function Name":"f"}], "test_script_c":"code", "test_runner_c":"run"}` +
			"\n```"

		result, strategy := extractor.ExtractWithStrategy(input)

		assert.Equal(t, StrategyJSON, strategy)
		require.Len(t, result.TestCases, 1)
		assert.Equal(t, TestCase{ID: "TC_1", FunctionName: "f", TestCode: "code"}, result.TestCases[0])
		assert.Equal(t, "run", result.TestRunnerScript)
		assert.Equal(t, 1, result.Summary.TotalTests)
		assert.Equal(t, []string{"f"}, result.Summary.FunctionsTested)
	})

	t.Run("json mirror without code takes fenced blocks", func(t *testing.T) {
		input := markdownReply + "\n```json\n" +
			`{"table_rows": [{"Test Case ID": "TC_001", "Unit Test Function Name": "test_add"}]}` +
			"\n```"

		result, strategy := extractor.ExtractWithStrategy(input)

		assert.Equal(t, StrategyJSON, strategy)
		require.Len(t, result.TestCases, 1)
		assert.Contains(t, result.TestCases[0].TestCode, "void test_add(void)")
		assert.Contains(t, result.TestRunnerScript, "UNITY_BEGIN()")
		assert.Equal(t, "test:\n\tgcc -o runner test_runner.c && ./runner", result.MakefileContent)
	})

	t.Run("example json does not hide the mirror", func(t *testing.T) {
		input := "Example:\n```json\n{\"x\": 1}\n```\n" +
			`{"table_rows": [{"Test Case ID": "TC_004"}], "test_script_c": "code"}`

		result, strategy := extractor.ExtractWithStrategy(input)

		assert.Equal(t, StrategyJSON, strategy)
		require.Len(t, result.TestCases, 1)
		assert.Equal(t, "TC_004", result.TestCases[0].ID)
	})

	t.Run("json mirror with empty rows", func(t *testing.T) {
		result, strategy := extractor.ExtractWithStrategy(`{"table_rows": [], "test_script_c": "x"}`)

		assert.Equal(t, StrategyJSON, strategy)
		assert.Empty(t, result.TestCases)
		assert.Equal(t, 0, result.Summary.TotalTests)
	})

	t.Run("json mirror synthesizes ids", func(t *testing.T) {
		input := `{"table_rows": [
			{"Unit Test Function Name": "a"},
			{"Unit Test Function Name": "b"},
			{"Unit Test Function Name": "a"}
		], "test_script_c": "shared", "makefile_content": "all:\n\tmake test"}`

		result := extractor.Extract(input)

		require.Len(t, result.TestCases, 3)
		assert.Equal(t, "TC_001", result.TestCases[0].ID)
		assert.Equal(t, "TC_002", result.TestCases[1].ID)
		assert.Equal(t, "TC_003", result.TestCases[2].ID)
		for _, tc := range result.TestCases {
			assert.Equal(t, "shared", tc.TestCode)
		}
		assert.Equal(t, []string{"a", "b"}, result.Summary.FunctionsTested)
		assert.Equal(t, "all:\n\tmake test", result.MakefileContent)
	})

	t.Run("json values that are not strings", func(t *testing.T) {
		result := extractor.Extract(`{"table_rows": [{"Test Case ID": 7, "Input Data": null, "Description": true}]}`)

		require.Len(t, result.TestCases, 1)
		assert.Equal(t, "7", result.TestCases[0].ID)
		assert.Equal(t, "", result.TestCases[0].InputData)
		assert.Equal(t, "true", result.TestCases[0].Description)
	})

	t.Run("markdown fallback", func(t *testing.T) {
		result, strategy := extractor.ExtractWithStrategy(markdownReply)

		assert.Equal(t, StrategyMarkdown, strategy)
		require.Len(t, result.TestCases, 3)

		first := result.TestCases[0]
		assert.Equal(t, "TC_001", first.ID)
		assert.Equal(t, "Adds positives", first.Description)
		assert.Equal(t, "1, 2", first.InputData)
		assert.Equal(t, "3", first.ExpectedOutput)
		assert.Equal(t, TypePositive, first.Type)
		assert.Contains(t, first.TestCode, "void test_add(void)")

		assert.Equal(t, "TC_002", result.TestCases[1].ID)
		assert.Equal(t, TypeNegative, result.TestCases[2].Type)
		for _, tc := range result.TestCases {
			assert.Equal(t, first.TestCode, tc.TestCode)
		}

		assert.Contains(t, result.TestRunnerScript, "UNITY_BEGIN()")
		assert.Equal(t, "test:\n\tgcc -o runner test_runner.c && ./runner", result.MakefileContent)
		assert.Equal(t, 3, result.Summary.TotalTests)
		assert.Equal(t, []string{"test_add", "test_divide"}, result.Summary.FunctionsTested)
	})

	t.Run("json without rows falls back to markdown", func(t *testing.T) {
		input := markdownReply + "\n" + `{"note": "no rows here"}`

		result, strategy := extractor.ExtractWithStrategy(input)

		assert.Equal(t, StrategyMarkdown, strategy)
		assert.Len(t, result.TestCases, 3)
	})

	t.Run("single code block leaves runner empty", func(t *testing.T) {
		input := "| A |\n|---|\n| x |\n```c\nint only;\n```"

		result := extractor.Extract(input)

		require.Len(t, result.TestCases, 1)
		assert.Equal(t, "int only;", result.TestCases[0].TestCode)
		assert.Empty(t, result.TestRunnerScript)
	})

	t.Run("unstructured prose", func(t *testing.T) {
		result, strategy := extractor.ExtractWithStrategy("I could not generate tests for this input.")

		assert.Equal(t, StrategyMarkdown, strategy)
		assert.Empty(t, result.TestCases)
		assert.Equal(t, 0, result.Summary.TotalTests)
	})
}

func TestExtractionResultJSON(t *testing.T) {
	extractor := NewExtractor(loggy.NewNoopLogger())
	result := extractor.Extract(markdownReply)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded ExtractionResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result, decoded)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "test_cases")
	assert.Contains(t, raw, "test_runner_script")
	assert.Contains(t, raw, "makefile_content")
	summary, ok := raw["summary"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, summary, "total_tests")
	assert.Contains(t, summary, "functions_tested")
	assert.Contains(t, summary, "coverage_areas")
}

func TestEmptyResultEncodesArrays(t *testing.T) {
	result := NewExtractor(nil).Extract("")

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"test_cases":[]`)
	assert.Contains(t, string(data), `"functions_tested":[]`)
}
