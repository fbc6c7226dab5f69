package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"token-scout/internal/domain"
)

// ParseScore extracts and validates an AiScore from a raw model reply.
//
// syntaxErr is non-nil when the reply is not parseable JSON (the caller
// may issue the one repair follow-up). schemaErr is non-nil when the
// JSON parsed but violates the AiScore schema (a hard failure, no
// repair).
func ParseScore(raw string) (score *domain.AiScore, syntaxErr, schemaErr error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in reply of %d chars", len(raw)), nil
	}

	var parsed domain.AiScore
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err), nil
	}

	if err := parsed.Validate(); err != nil {
		return nil, nil, fmt.Errorf("schema validation: %w", err)
	}
	return &parsed, nil, nil
}

// extractJSON returns the first balanced top-level JSON object in raw,
// tolerating markdown code fences and surrounding prose. Returns ""
// when no object is found.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Strip a ```json ... ``` fence if present.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
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
				return s[start : i+1]
			}
		}
	}
	return ""
}
