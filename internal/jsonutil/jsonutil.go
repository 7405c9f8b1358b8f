package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyInput = errors.New("jsonutil: empty input")

// DecodeWithFallback decodes a model reply into out. Replies are not always
// bare JSON: try a direct decode first, then the contents of a fenced code
// block, then the first balanced object found in the text.
func DecodeWithFallback(raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ErrEmptyInput
	}
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}
	if fenced, ok := extractFencedBlock(trimmed); ok {
		if err := json.Unmarshal([]byte(fenced), out); err == nil {
			return nil
		}
	}
	if obj, ok := extractFirstObject(trimmed); ok {
		if err := json.Unmarshal([]byte(obj), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("jsonutil: no decodable JSON payload")
}

func extractFencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && isFenceLanguage(rest[:nl]) {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func isFenceLanguage(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func extractFirstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
