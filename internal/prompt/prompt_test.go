package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/llm"
	"github.com/tildaslashalef/unitforge/internal/parser"
)

func TestBuild(t *testing.T) {
	b := NewBuilder("")
	sources := []parser.SourceFile{
		{Name: "math.c", Content: "int add(int a, int b) { return a + b; }", Kind: parser.KindSource},
		{Name: "util.c", Content: "void noop(void) {}", Kind: parser.KindSource},
	}
	headers := []parser.SourceFile{
		{Name: "math.h", Content: "int add(int a, int b);", Kind: parser.KindHeader},
	}

	msgs, err := b.Build(sources, headers)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)

	system := msgs[0].Content
	assert.Contains(t, system, "expert C developer")
	assert.Contains(t, system, "Unity")
	for _, area := range extractor.CoverageAreas() {
		assert.Contains(t, system, area)
	}
	for _, col := range Columns() {
		assert.Contains(t, system, `"`+col+`": "..."`, "mirror schema should list column %q", col)
	}
	assert.Contains(t, system, `"table_rows"`)
	assert.Contains(t, system, `"test_script_c"`)
	assert.Contains(t, system, `"test_runner_c"`)
	assert.Contains(t, system, `"makefile_content"`)
	assert.Contains(t, system, "Test Case ID | Description | Input Data")

	user := msgs[1].Content
	iMath := strings.Index(user, "===== FILE: math.c =====")
	iUtil := strings.Index(user, "===== FILE: util.c =====")
	iHeader := strings.Index(user, "===== FILE: math.h =====")
	require.True(t, iMath >= 0 && iUtil >= 0 && iHeader >= 0, "every file needs a preamble")
	assert.Less(t, iMath, iUtil, "sources keep their order")
	assert.Less(t, iUtil, iHeader, "sources come before headers")
	assert.Contains(t, user, "return a + b;")
}

func TestBuildRequiresSource(t *testing.T) {
	_, err := NewBuilder("C").Build(nil, []parser.SourceFile{{Name: "a.h", Kind: parser.KindHeader}})
	assert.ErrorIs(t, err, ErrNoSourceFiles)
}

func TestBuildDoesNotEscapeContent(t *testing.T) {
	msgs, err := NewBuilder("C++").Build([]parser.SourceFile{{Name: "a.cpp", Content: `if (a < b && c > "d") {}`}}, nil)
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, `if (a < b && c > "d") {}`)
	assert.Contains(t, msgs[0].Content, "expert C++ developer")
}
