package llm

import (
	"context"
	"strings"
	"testing"
)

func TestUnconfigured(t *testing.T) {
	var c Client = Unconfigured{}
	if c.IsConfigured() {
		t.Error("Unconfigured reports configured")
	}
	if _, err := c.Generate(context.Background(), GenerateRequest{Task: "x"}); err == nil {
		t.Error("Generate should fail on an unconfigured client")
	}
}

func TestGenerateErrorFormatting(t *testing.T) {
	err := &GenerateError{Message: "rate limited", Retryable: true}
	if !strings.Contains(err.Error(), "retryable") {
		t.Errorf("retryable error missing marker: %q", err.Error())
	}

	err = &GenerateError{Message: "invalid key"}
	if strings.Contains(err.Error(), "retryable") {
		t.Errorf("terminal error carries retryable marker: %q", err.Error())
	}
}

func TestBuildParamsMaxTokens(t *testing.T) {
	c := &AnthropicClient{model: "claude-sonnet-4-20250514", defaultMaxTokens: 4096}

	params := c.buildParams(GenerateRequest{Task: "x", MaxTokens: 8192})
	if params.MaxTokens != 8192 {
		t.Errorf("MaxTokens = %d, want 8192", params.MaxTokens)
	}

	// Zero falls back to the client default.
	params = c.buildParams(GenerateRequest{Task: "x"})
	if params.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want client default 4096", params.MaxTokens)
	}
}

func TestBuildParamsTemperature(t *testing.T) {
	c := &AnthropicClient{model: "claude-sonnet-4-20250514", defaultMaxTokens: 4096}

	// Unset temperature is left to the provider, not sent as zero.
	params := c.buildParams(GenerateRequest{Task: "x"})
	if params.Temperature.Valid() {
		t.Errorf("zero temperature was sent explicitly: %v", params.Temperature)
	}

	params = c.buildParams(GenerateRequest{Task: "x", Temperature: 0.7})
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", params.Temperature)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock("claude-sonnet-4-20250514")
	want := "us.anthropic.claude-sonnet-4-20250514-v1:0"
	if string(got) != want {
		t.Errorf("translateModelForBedrock = %q, want %q", got, want)
	}

	// Already-translated names pass through unchanged.
	if again := translateModelForBedrock(got); again != got {
		t.Errorf("double translation changed model: %q", again)
	}
}
