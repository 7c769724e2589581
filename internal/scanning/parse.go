package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LocateJSON returns the first balanced top-level JSON object or array in
// text. Brackets inside string literals are ignored. Anything before or after
// the value (prose, markdown fences) is discarded.
func LocateJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON object or array found in response: %w", ErrUnparseable)
	}

	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", fmt.Errorf("mismatched %q at offset %d: %w", c, i, ErrUnparseable)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON value starting at offset %d: %w", start, ErrUnparseable)
}

// ParseJSON locates the first JSON value in a model response and strictly
// decodes it. Numbers are kept as json.Number so amounts keep their textual form.
func ParseJSON(text string) (any, error) {
	located, err := LocateJSON(text)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(located)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w: %w", ErrUnparseable, err)
	}
	return v, nil
}
