package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("object at end of text", func(t *testing.T) {
		input := "Here is the mirror:\n{\"a\": 1, \"b\": {\"c\": \"x\"}}\n```"

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		assert.Equal(t, float64(1), obj["a"])
		assert.Equal(t, map[string]any{"c": "x"}, obj["b"])
	})

	t.Run("braces in code before the object", func(t *testing.T) {
		input := "```c\nint main(void) { return 0; }\n```\n" +
			`{"table_rows": [{"Test Case ID": "TC_9"}]}`

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		rows, ok := obj["table_rows"].([]any)
		require.True(t, ok)
		assert.Len(t, rows, 1)
	})

	t.Run("fenced example before an unfenced mirror", func(t *testing.T) {
		input := "Example input:\n```json\n{\"x\": 1}\n```\nMirror:\n" +
			`{"table_rows": [{"Test Case ID": "TC_001"}], "test_script_c": "int x;"}`

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		assert.Contains(t, obj, "table_rows")
		assert.NotContains(t, obj, "x")
	})

	t.Run("fenced block with rows wins over a later example", func(t *testing.T) {
		input := "```json\n{\"table_rows\": []}\n```\nFor example:\n```json\n{\"x\": 1}\n```\nthat is all"

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		assert.Contains(t, obj, "table_rows")
	})

	t.Run("prefers last parseable fenced block", func(t *testing.T) {
		input := "```json\n{\"n\": 1}\n```\ntext\n```json\n{\"n\": 2}\n```\ntrailing prose"

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		assert.Equal(t, float64(2), obj["n"])
	})

	t.Run("skips invalid later fenced block", func(t *testing.T) {
		input := "```json\n{\"n\": 1}\n```\n```json\n{\"n\": oops}\n```\ndone"

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		assert.Equal(t, float64(1), obj["n"])
	})

	t.Run("only the second fenced block parses", func(t *testing.T) {
		input := "```json\n{broken,}\n```\n```json\n{\"ok\": true}\n```\nthanks"

		obj, ok := ExtractJSON(input)

		require.True(t, ok)
		assert.Equal(t, true, obj["ok"])
	})

	t.Run("no brace at all", func(t *testing.T) {
		obj, ok := ExtractJSON("no structured data here ```json```")

		assert.False(t, ok)
		assert.Nil(t, obj)
	})

	t.Run("malformed json is not an error", func(t *testing.T) {
		obj, ok := ExtractJSON("result: {\"a\": ")

		assert.False(t, ok)
		assert.Nil(t, obj)
	})

	t.Run("array is not an object", func(t *testing.T) {
		_, ok := ExtractJSON("[{\"a\": 1}] trailing")

		assert.False(t, ok)
	})
}
