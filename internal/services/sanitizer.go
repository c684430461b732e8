package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
)

// Model output arrives as JSON-ish text: possibly fenced, possibly carrying a
// BOM, raw line separators, or LaTeX-style backslash commands that break
// strict parsing. ParseModelJSON recovers a well-formed value by trying an
// ordered list of rewrites and fails only when none of them parse.

var codeFenceRE = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

var invalidEscapeRE = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

var forbiddenKeys = map[string]struct{}{
	"thought":               {},
	"thoughts":              {},
	"thought_signature":     {},
	"thought-signature":     {},
	"thoughtSignature":      {},
	"thoughtSignatureBlock": {},
}

const validSingleEscapes = "\"\\/bfnrtu"

func stripCodeFence(text string) string {
	stripped := strings.TrimSpace(text)
	if m := codeFenceRE.FindStringSubmatch(stripped); m != nil {
		return m[1]
	}
	return stripped
}

// escapeInvalidBackslashes doubles any backslash escape that is not one of
// the valid single-character JSON escapes.
func escapeInvalidBackslashes(text string) string {
	return invalidEscapeRE.ReplaceAllString(text, `\\$1`)
}

// escapeLatexCommands doubles backslash-letter sequences that look like
// markup commands (\theta, \_sub) while leaving valid single-character
// escapes (\n, \t, \u...) intact. A backslash preceded by another backslash
// is already escaped and is skipped.
func escapeLatexCommands(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		c := text[i]
		if c != '\\' || (i > 0 && text[i-1] == '\\') {
			sb.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(text) && isASCIILetter(text[j]) {
			j++
		}
		cmd := text[i+1 : j]
		if len(cmd) == 0 {
			sb.WriteByte(c)
			i++
			continue
		}
		if len(cmd) == 1 && strings.ContainsRune(validSingleEscapes, rune(cmd[0])) {
			sb.WriteString(text[i:j])
		} else {
			sb.WriteString(`\\`)
			sb.WriteString(cmd)
		}
		i = j
	}
	return sb.String()
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func normalizeControlCharacters(text string) string {
	text = strings.ReplaceAll(text, "\u2028", `\u2028`)
	return strings.ReplaceAll(text, "\u2029", `\u2029`)
}

// generateCandidates returns the ordered, deduplicated rewrite list. Order is
// fixed so the same input always resolves to the same accepted candidate.
func generateCandidates(base string) []string {
	candidates := make([]string, 0, 4)
	seen := map[string]struct{}{}
	add := func(c string) {
		c = strings.TrimSpace(c)
		if c == "" {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		candidates = append(candidates, c)
	}
	add(base)
	add(escapeLatexCommands(base))
	add(escapeInvalidBackslashes(base))
	add(escapeInvalidBackslashes(escapeLatexCommands(base)))
	return candidates
}

// escapeRawControlChars rewrites literal control characters found inside
// string literals to their escaped forms, the lenient counterpart of the
// strict parse.
func escapeRawControlChars(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			sb.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			sb.WriteByte(c)
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			sb.WriteByte(c)
		case c == '"':
			inString = false
			sb.WriteByte(c)
		case c < 0x20:
			switch c {
			case '\n':
				sb.WriteString(`\n`)
			case '\r':
				sb.WriteString(`\r`)
			case '\t':
				sb.WriteString(`\t`)
			default:
				sb.WriteString(fmt.Sprintf(`\u%04x`, c))
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func removeForbiddenFields(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, forbidden := forbiddenKeys[k]; forbidden {
				continue
			}
			out[k] = removeForbiddenFields(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, removeForbiddenFields(item))
		}
		return out
	default:
		return v
	}
}

// ParseModelJSON sanitizes and parses raw model text. It is pure: no I/O, no
// state, deterministic candidate order.
func ParseModelJSON(raw string) (any, error) {
	cleaned := stripCodeFence(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, fmt.Errorf("%w: empty model response", apperr.ErrModelOutput)
	}
	cleaned = strings.TrimPrefix(cleaned, "\uFEFF")
	cleaned = normalizeControlCharacters(cleaned)

	var lastErr error
	for _, candidate := range generateCandidates(cleaned) {
		for _, text := range []string{candidate, escapeRawControlChars(candidate)} {
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err != nil {
				lastErr = err
				continue
			}
			return removeForbiddenFields(parsed), nil
		}
	}
	return nil, fmt.Errorf("%w: %v", apperr.ErrModelOutput, lastErr)
}
