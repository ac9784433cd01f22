package ai

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	var out struct {
		IsRelevant bool `json:"is_relevant"`
	}
	if err := decodeResponse("relevance", "```json\n{\"is_relevant\": true}\n```", &out); err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if !out.IsRelevant {
		t.Error("is_relevant not decoded")
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	var out map[string]any
	err := decodeResponse("category", "I cannot classify this tweet.", &out)
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}

	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("error type = %T, want *MalformedResponseError", err)
	}
	if malformed.Stage != "category" {
		t.Errorf("stage = %q", malformed.Stage)
	}
	if malformed.Raw != "I cannot classify this tweet." {
		t.Errorf("raw response not preserved: %q", malformed.Raw)
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 0}, {0, 0}, {50, 50}, {100, 100}, {140, 100},
	}
	for _, tt := range tests {
		if got := clampConfidence(tt.in); got != tt.want {
			t.Errorf("clampConfidence(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCapabilityErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &CapabilityError{Stage: "extraction", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("CapabilityError should unwrap to its cause")
	}
}
