package llm

import (
	"math"
	"testing"
)

func TestLocalCostIsAlwaysZero(t *testing.T) {
	a := NewOllamaAdapter(OllamaConfig{})

	for _, tc := range [][2]int{{0, 0}, {1000, 500}, {1 << 20, 1 << 20}} {
		if cost := a.EstimateCost(tc[0], tc[1]); cost != 0 {
			t.Errorf("EstimateCost(%d, %d) = %v, want 0", tc[0], tc[1], cost)
		}
	}
}

func TestCloudCostFromPricingTable(t *testing.T) {
	// claude-3-5-sonnet is priced in=0.003/1K, out=0.015/1K.
	a := NewAnthropicAdapter(AnthropicConfig{APIKey: "k", Model: "claude-3-5-sonnet-20241022"})

	got := a.EstimateCost(1000, 500)
	if math.Abs(got-0.0105) > 1e-9 {
		t.Errorf("EstimateCost(1000, 500) = %v, want 0.0105", got)
	}

	if cost := a.EstimateCost(0, 0); cost != 0 {
		t.Errorf("EstimateCost(0, 0) = %v, want 0", cost)
	}
}

func TestUnknownModelFallsBackToDefaultRates(t *testing.T) {
	a := NewOpenAIAdapter(OpenAIConfig{APIKey: "k", Model: "gpt-9-experimental"})

	// Default rates are in=0.003/1K, out=0.015/1K.
	got := a.EstimateCost(2000, 1000)
	want := 2.0*0.003 + 1.0*0.015
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimateCost(2000, 1000) = %v, want %v", got, want)
	}
}

func TestEstimateIsPure(t *testing.T) {
	a := NewOpenAIAdapter(OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini"})

	first := a.EstimateCost(1234, 567)
	for i := 0; i < 5; i++ {
		if got := a.EstimateCost(1234, 567); got != first {
			t.Fatalf("EstimateCost changed between calls: %v != %v", got, first)
		}
	}
}
