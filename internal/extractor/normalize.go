package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Accepted spellings per field, conventional header first
var (
	idKeys          = []string{ColTestCaseID, "Test ID", "ID", "id"}
	functionKeys    = []string{ColFunctionName, "Function Name", "Test Function", "function_name"}
	descriptionKeys = []string{ColDescription, "description"}
	inputKeys       = []string{ColInputData, "Input", "input_data"}
	expectedKeys    = []string{ColExpectedOutput, "Expected Output", "Expected Result", "expected_output"}
	typeKeys        = []string{ColType, "Type", "type"}
)

// rowToTestCase maps a raw row onto the canonical test case shape
func rowToTestCase(row Row, code string) TestCase {
	return TestCase{
		ID:             lookup(row, idKeys),
		FunctionName:   lookup(row, functionKeys),
		Description:    lookup(row, descriptionKeys),
		InputData:      lookup(row, inputKeys),
		ExpectedOutput: lookup(row, expectedKeys),
		Type:           lookup(row, typeKeys),
		TestCode:       code,
	}
}

func lookup(row Row, keys []string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			return v
		}
	}
	return ""
}

// rowsFromJSON reads the table_rows list of a JSON mirror. The second return
// value is false when the field is missing or is not a list.
func rowsFromJSON(obj map[string]any) ([]Row, bool) {
	raw, ok := obj[KeyTableRows]
	if !ok {
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	rows := make([]Row, 0, len(list))
	for _, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make(Row, len(fields))
		for k, v := range fields {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}
	return rows, true
}

func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return stringify(v)
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// finalize fills missing identifiers and builds the summary
func finalize(result *ExtractionResult) {
	if result.TestCases == nil {
		result.TestCases = make([]TestCase, 0)
	}

	seen := make(map[string]struct{})
	functions := make([]string, 0)
	for i := range result.TestCases {
		tc := &result.TestCases[i]
		if strings.TrimSpace(tc.ID) == "" {
			tc.ID = fmt.Sprintf("TC_%03d", i+1)
		}

		name := strings.TrimSpace(tc.FunctionName)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		functions = append(functions, name)
	}

	result.Summary = Summary{
		TotalTests:      len(result.TestCases),
		FunctionsTested: functions,
		CoverageAreas:   CoverageAreas(),
	}
}
