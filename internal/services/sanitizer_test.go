package services

import (
	"reflect"
	"testing"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
)

func TestParseModelJSONCodeFenced(t *testing.T) {
	raw := "```json\n    {\"nodes\": [], \"edges\": []}\n    ```"
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	want := map[string]any{"nodes": []any{}, "edges": []any{}}
	if !reflect.DeepEqual(parsed, want) {
		t.Fatalf("parsed: want=%v got=%v", want, parsed)
	}
}

func TestParseModelJSONUntaggedFence(t *testing.T) {
	raw := "```\n{\"nodes\": []}\n```"
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		t.Fatalf("parsed type: got=%T", parsed)
	}
	if _, ok := obj["nodes"]; !ok {
		t.Fatalf("missing nodes key: got=%v", obj)
	}
}

func TestParseModelJSONEscapesProblematicBackslashes(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "invalid escape",
			raw:      `{"nodes": [{"name": "Integral", "description": "Uses \_subscripts"}], "edges": []}`,
			expected: `Uses \_subscripts`,
		},
		{
			name:     "latex command",
			raw:      `{"nodes": [{"name": "Trig", "description": "Angle \\theta"}], "edges": []}`,
			expected: `Angle \theta`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseModelJSON(tc.raw)
			if err != nil {
				t.Fatalf("ParseModelJSON: %v", err)
			}
			obj := parsed.(map[string]any)
			nodes := obj["nodes"].([]any)
			desc := nodes[0].(map[string]any)["description"].(string)
			if desc != tc.expected {
				t.Fatalf("description: want=%q got=%q", tc.expected, desc)
			}
		})
	}
}

func TestParseModelJSONDropsThoughtSignature(t *testing.T) {
	raw := `{"nodes": [], "edges": [], "thought-signature": {"id": "abc"}}`
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	obj := parsed.(map[string]any)
	if _, exists := obj["thought-signature"]; exists {
		t.Fatalf("thought-signature not stripped: got=%v", obj)
	}
}

func TestParseModelJSONDropsForbiddenKeysAtDepth(t *testing.T) {
	raw := `{"nodes": [{"name": "A", "description": "B", "thought": "hidden"}], "edges": [], "meta": {"thoughtSignature": "x", "keep": 1}}`
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	obj := parsed.(map[string]any)
	node := obj["nodes"].([]any)[0].(map[string]any)
	if _, exists := node["thought"]; exists {
		t.Fatalf("nested thought not stripped: got=%v", node)
	}
	meta := obj["meta"].(map[string]any)
	if _, exists := meta["thoughtSignature"]; exists {
		t.Fatalf("nested thoughtSignature not stripped: got=%v", meta)
	}
	if meta["keep"] != float64(1) {
		t.Fatalf("sibling key lost: got=%v", meta)
	}
}

func TestParseModelJSONEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "```json\n```"} {
		if _, err := ParseModelJSON(raw); !apperr.IsModelOutput(err) {
			t.Fatalf("empty input %q: want ErrModelOutput got=%v", raw, err)
		}
	}
}

func TestParseModelJSONUnparsable(t *testing.T) {
	_, err := ParseModelJSON("definitely not json {{{")
	if !apperr.IsModelOutput(err) {
		t.Fatalf("want ErrModelOutput got=%v", err)
	}
}

func TestParseModelJSONNormalizesLineSeparators(t *testing.T) {
	raw := "{\"nodes\": [{\"name\": \"A\", \"description\": \"line break\"}], \"edges\": []}"
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	obj := parsed.(map[string]any)
	desc := obj["nodes"].([]any)[0].(map[string]any)["description"].(string)
	if desc != "line break" {
		t.Fatalf("description: want=%q got=%q", "line break", desc)
	}
}

func TestParseModelJSONLenientControlChars(t *testing.T) {
	raw := "{\"nodes\": [{\"name\": \"A\", \"description\": \"first\nsecond\"}], \"edges\": []}"
	parsed, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	obj := parsed.(map[string]any)
	desc := obj["nodes"].([]any)[0].(map[string]any)["description"].(string)
	if desc != "first\nsecond" {
		t.Fatalf("description: want=%q got=%q", "first\nsecond", desc)
	}
}

func TestParseModelJSONStripsBOM(t *testing.T) {
	raw := "\uFEFF{\"nodes\": [], \"edges\": []}"
	if _, err := ParseModelJSON(raw); err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
}

func TestParseModelJSONDeterministic(t *testing.T) {
	raw := `{"nodes": [{"name": "Trig", "description": "Angle \theta and \_x"}], "edges": []}`
	first, err := ParseModelJSON(raw)
	if err != nil {
		t.Fatalf("ParseModelJSON: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ParseModelJSON(raw)
		if err != nil {
			t.Fatalf("ParseModelJSON (run %d): %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("non-deterministic parse: first=%v run%d=%v", first, i, again)
		}
	}
}
