// Package prompt renders the messages sent to the model for one generation.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/llm"
	"github.com/tildaslashalef/unitforge/internal/parser"
)

// ErrNoSourceFiles is returned when Build is called without any implementation file
var ErrNoSourceFiles = errors.New("at least one source file is required")

const systemInstructionTemplate = `You are an expert {{.Language}} developer and software tester with deep knowledge of unit testing, code coverage methodologies and the Unity C test framework.

Rules:
- Analyze every uploaded source and header file before writing test cases.
- Aim for full coverage across: {{join .CoverageAreas ", "}}.
- Cover every loop with zero, one and many iterations.
- Include both positive and negative scenarios.
- Every line of code must be reached by at least one test case.
- Use the functions declared in the uploaded headers instead of writing mocks or stubs.
- Each unit test function must match a row of the test case table by name.

Tasks:
- Identify all functions, their parameters, return values and expected behavior.
- Generate the test case table described below.
- Write one C test script using Unity that implements every row of the table.
- Write a test runner in C that calls every test through RUN_TEST.
- Write a Makefile whose "test" target builds and runs the runner.

Output, in this order:
1. A markdown table with exactly these columns: {{range $i, $c := .Columns}}{{if $i}} | {{end}}{{$c}}{{end}}
2. The test script inside a ` + "```c" + ` fence.
3. The test runner inside a second ` + "```c" + ` fence.
4. The Makefile inside a ` + "```makefile" + ` fence.
5. A JSON mirror of the same answer as the LAST section, inside a ` + "```json" + ` fence.`

const jsonMirrorTemplate = `The JSON mirror must follow this schema exactly:

{
  "{{.KeyRows}}": [
    {
{{- range $i, $c := .Columns}}{{if $i}},{{end}}
      "{{$c}}": "..."
{{- end}}
    }
  ],
  "{{.KeyScript}}": "/* full Unity test script */",
  "{{.KeyRunner}}": "/* full test runner */",
  "{{.KeyMakefile}}": "# Makefile with a test target"
}

Keep the human readable table and code fences too. Tools parse the JSON block first.`

const fileTemplate = `===== FILE: {{.Name}} =====
{{.Content}}
`

var (
	systemTmpl = template.Must(template.New("system").Funcs(template.FuncMap{"join": strings.Join}).Parse(systemInstructionTemplate))
	mirrorTmpl = template.Must(template.New("mirror").Parse(jsonMirrorTemplate))
	fileTmpl   = template.Must(template.New("file").Parse(fileTemplate))
)

// Builder renders prompts for a target language
type Builder struct {
	language string
}

// NewBuilder returns a Builder; language defaults to C
func NewBuilder(language string) *Builder {
	if language == "" {
		language = "C"
	}
	return &Builder{language: language}
}

// Columns returns the table columns the model is asked for, in prompt order
func Columns() []string {
	return []string{
		extractor.ColTestCaseID,
		extractor.ColDescription,
		extractor.ColInputData,
		extractor.ColExpectedOutput,
		extractor.ColType,
		extractor.ColFunctionName,
	}
}

// BuildSystemInstruction renders the system message
func (b *Builder) BuildSystemInstruction() (string, error) {
	var buf bytes.Buffer
	if err := systemTmpl.Execute(&buf, map[string]any{
		"Language":      b.language,
		"CoverageAreas": extractor.CoverageAreas(),
		"Columns":       Columns(),
	}); err != nil {
		return "", fmt.Errorf("rendering system instruction: %w", err)
	}

	buf.WriteString("\n\n")
	if err := mirrorTmpl.Execute(&buf, map[string]any{
		"KeyRows":     extractor.KeyTableRows,
		"KeyScript":   extractor.KeyTestScript,
		"KeyRunner":   extractor.KeyTestRunner,
		"KeyMakefile": extractor.KeyMakefileContent,
		"Columns":     Columns(),
	}); err != nil {
		return "", fmt.Errorf("rendering JSON mirror instruction: %w", err)
	}
	return buf.String(), nil
}

// BuildFileContext renders every file behind its preamble, sources before headers
func (b *Builder) BuildFileContext(sources, headers []parser.SourceFile) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("Generate unit tests for the following files.\n\n")
	for _, group := range [][]parser.SourceFile{sources, headers} {
		for _, f := range group {
			if err := fileTmpl.Execute(&buf, f); err != nil {
				return "", fmt.Errorf("rendering file %s: %w", f.Name, err)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String(), nil
}

// Build returns the system and user messages for one generation
func (b *Builder) Build(sources, headers []parser.SourceFile) ([]llm.Message, error) {
	if len(sources) == 0 {
		return nil, ErrNoSourceFiles
	}

	system, err := b.BuildSystemInstruction()
	if err != nil {
		return nil, err
	}
	user, err := b.BuildFileContext(sources, headers)
	if err != nil {
		return nil, err
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}
