package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tildaslashalef/unitforge/internal/extractor"
)

func sampleCases() []extractor.TestCase {
	return []extractor.TestCase{
		{
			ID:             "TC_001",
			FunctionName:   "test_add_positive",
			Description:    "adds, two \"small\" numbers",
			InputData:      "a=1, b=2",
			ExpectedOutput: "3",
			Type:           extractor.TypePositive,
			TestCode:       "void test_add_positive(void) {\n    TEST_ASSERT_EQUAL(3, add(1, 2));\n}",
		},
		{
			ID:             "TC_002",
			FunctionName:   "test_add_overflow",
			Description:    "overflow is reported",
			InputData:      "a=INT_MAX, b=1",
			ExpectedOutput: "error",
			Type:           extractor.TypeNegative,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: " XLSX ", want: FormatXLSX},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMetadata(t *testing.T) {
	assert.Equal(t, "test_cases.csv", FormatCSV.Filename())
	assert.Equal(t, "test_cases.xlsx", FormatXLSX.Filename())
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleCases()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, CSVColumns, records[0])
	assert.Equal(t, "TC_001", records[1][0])
	assert.Equal(t, "adds, two \"small\" numbers", records[1][2], "quotes and commas survive")
	assert.Contains(t, records[1][6], "TEST_ASSERT_EQUAL(3, add(1, 2));", "multi-line code survives")
	assert.Equal(t, extractor.TypeNegative, records[2][5])
	assert.Equal(t, "", records[2][6])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,function_name,description,input_data,expected_output,type,test_code\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleCases()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, SheetColumns, rows[0])
	assert.Equal(t, []string{"TC_001", "test_add_positive", "adds, two \"small\" numbers", "a=1, b=2", "3", "Positive", StatusPending}, rows[1])
	assert.Equal(t, "TC_002", rows[2][0])
	assert.Equal(t, StatusPending, rows[2][6])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []extractor.TestCase{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, SheetColumns, rows[0])
}

func TestWriteDispatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, nil))
	assert.NotEmpty(t, buf.String())

	assert.ErrorIs(t, Write(&buf, Format("pdf"), nil), ErrUnknownFormat)
}
