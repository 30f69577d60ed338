package llm

import (
	"errors"
	"testing"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantSpan bool
	}{
		{
			name:     "plain object",
			input:    `{"key": "value"}`,
			want:     `{"key": "value"}`,
			wantSpan: true,
		},
		{
			name:     "object with surrounding prose",
			input:    "Here is the JSON:\n{\"key\": \"value\"}\nHope that helps!",
			want:     `{"key": "value"}`,
			wantSpan: true,
		},
		{
			name:     "nested object",
			input:    `{"outer": {"inner": "value"}}`,
			want:     `{"outer": {"inner": "value"}}`,
			wantSpan: true,
		},
		{
			name:     "stray brace in trailing prose does not widen the span",
			input:    `{"a": 1} and remember: use {braces} carefully}`,
			want:     `{"a": 1}`,
			wantSpan: true,
		},
		{
			name:     "braces inside strings are ignored",
			input:    `{"text": "a { lonely brace"} trailing`,
			want:     `{"text": "a { lonely brace"}`,
			wantSpan: true,
		},
		{
			name:     "escaped quotes",
			input:    `{"text": "He said \"hi\""}`,
			want:     `{"text": "He said \"hi\""}`,
			wantSpan: true,
		},
		{
			name:     "no object",
			input:    "just some text",
			wantSpan: false,
		},
		{
			name:     "unbalanced object",
			input:    `{"key": "value"`,
			wantSpan: false,
		},
		{
			name:     "empty input",
			input:    "",
			wantSpan: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstJSONObject(tt.input)
			if ok != tt.wantSpan {
				t.Fatalf("firstJSONObject(%q) ok = %v, want %v", tt.input, ok, tt.wantSpan)
			}
			if ok && got != tt.want {
				t.Errorf("firstJSONObject(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeObject(t *testing.T) {
	type payload struct {
		PrimaryCategory string   `json:"primaryCategory"`
		SuggestedTags   []string `json:"suggestedTags"`
	}

	t.Run("fenced JSON", func(t *testing.T) {
		var p payload
		input := "```json\n{\"primaryCategory\":\"A/B\",\"suggestedTags\":[\"x\"]}\n```"
		if err := DecodeObject(input, &p); err != nil {
			t.Fatalf("DecodeObject failed: %v", err)
		}
		if p.PrimaryCategory != "A/B" {
			t.Errorf("PrimaryCategory = %q, want %q", p.PrimaryCategory, "A/B")
		}
		if len(p.SuggestedTags) != 1 || p.SuggestedTags[0] != "x" {
			t.Errorf("SuggestedTags = %v, want [x]", p.SuggestedTags)
		}
	})

	t.Run("object buried in prose", func(t *testing.T) {
		var p payload
		input := "Sure! Here's my take:\n{\"primaryCategory\":\"tech/ai\"}\nLet me know if you need more."
		if err := DecodeObject(input, &p); err != nil {
			t.Fatalf("DecodeObject failed: %v", err)
		}
		if p.PrimaryCategory != "tech/ai" {
			t.Errorf("PrimaryCategory = %q, want %q", p.PrimaryCategory, "tech/ai")
		}
	})

	t.Run("no object span", func(t *testing.T) {
		var p payload
		err := DecodeObject("I cannot classify this content.", &p)
		if !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("DecodeObject = %v, want ErrMalformedOutput", err)
		}
	})

	t.Run("invalid JSON in span", func(t *testing.T) {
		var p payload
		err := DecodeObject(`{"primaryCategory": unquoted}`, &p)
		if !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("DecodeObject = %v, want ErrMalformedOutput", err)
		}
	})
}
