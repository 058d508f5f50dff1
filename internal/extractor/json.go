package extractor

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxBraceAttempts bounds how many opening braces the suffix scan tries,
// counted backward from the last one.
const maxBraceAttempts = 512

var jsonFenceRegex = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")

// ExtractJSON finds a JSON object embedded in a model reply.
//
// The text from an opening brace to the end is decoded first, starting at the
// last brace and stepping back so that a nested object ending the text is
// still recovered whole. When the reply does not end in an object, fenced
// blocks tagged json are tried from the last one backward, preferring one that
// carries table_rows. Decode failures are never reported; the second return
// value is false when no object was found.
func ExtractJSON(text string) (map[string]any, bool) {
	if !strings.Contains(text, "{") {
		return nil, false
	}

	if obj, ok := decodeJSONSuffix(text); ok {
		return obj, true
	}

	return decodeFencedJSON(text)
}

func decodeFencedJSON(text string) (map[string]any, bool) {
	matches := jsonFenceRegex.FindAllStringSubmatch(text, -1)
	var fallback map[string]any
	for i := len(matches) - 1; i >= 0; i-- {
		obj, ok := decodeObject(matches[i][1])
		if !ok {
			continue
		}
		if _, hasRows := obj[KeyTableRows]; hasRows {
			return obj, true
		}
		if fallback == nil {
			fallback = obj
		}
	}
	return fallback, fallback != nil
}

func decodeJSONSuffix(text string) (map[string]any, bool) {
	end := len(text)
	for attempt := 0; attempt < maxBraceAttempts; attempt++ {
		start := strings.LastIndex(text[:end], "{")
		if start < 0 {
			return nil, false
		}

		candidate := strings.TrimRight(strings.TrimSpace(text[start:]), "`")
		if obj, ok := decodeObject(strings.TrimSpace(candidate)); ok {
			return obj, true
		}
		end = start
	}
	return nil, false
}

func decodeObject(candidate string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
