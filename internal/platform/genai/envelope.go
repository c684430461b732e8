package genai

import "strings"

// GenerateContentResponse is the response envelope: zero or more candidates,
// each holding ordered content parts. Parts flagged Thought carry internal
// reasoning and must never be treated as payload.
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content Content `json:"content"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Text concatenates every non-thought text part across candidates, matching
// the SDK convenience accessor.
func (r *GenerateContentResponse) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// StructuredText pulls the raw structured payload out of the envelope. It
// prefers an explicit part: inline data tagged application/json, or the first
// non-thought text part. When no candidate carries a usable part it falls
// back to the concatenated plain text.
func (r *GenerateContentResponse) StructuredText() string {
	if r == nil {
		return ""
	}
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Thought {
				continue
			}
			if part.InlineData != nil && strings.EqualFold(part.InlineData.MIMEType, "application/json") {
				return string(part.InlineData.Data)
			}
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return r.Text()
}
