// Package json provides JSON extraction utilities for parsing LLM responses.
//
// Models asked for a structured answer sometimes reply with the JSON object
// wrapped in prose or a markdown fence. This package recovers the object.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when no JSON object can be recovered from a response.
var ErrNoJSON = errors.New("failed to extract valid JSON")

// ExtractObject returns the first JSON object found in response. It tries,
// in order: the whole response, the body of a ```json fenced block, and each
// balanced {...} span in the text.
func ExtractObject(response string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(response)
	if isObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	if fenced, ok := fencedBlock(trimmed); ok && isObject(fenced) {
		return json.RawMessage(fenced), nil
	}

	for start := strings.IndexByte(trimmed, '{'); start >= 0; {
		if end := matchBrace(trimmed, start); end > start {
			if candidate := trimmed[start : end+1]; isObject(candidate) {
				return json.RawMessage(candidate), nil
			}
		}
		next := strings.IndexByte(trimmed[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	// Create a preview for the error message
	preview := trimmed
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return nil, fmt.Errorf("%w from response: %q", ErrNoJSON, preview)
}

// ExtractJSONFromResponse extracts a JSON object from an LLM response and
// unmarshals it into T.
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	raw, err := ExtractObject(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}

// fencedBlock returns the contents of the first markdown code fence.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	body := s[open+3:]
	// Skip an info string such as "json".
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	closing := strings.Index(body, "```")
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:closing]), true
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside string literals are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Compact strips insignificant whitespace from a JSON document. Invalid
// input is returned unchanged.
func Compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
