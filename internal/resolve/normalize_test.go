package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"  GPT-4o Mini ", "gpt-4o-mini"},
		{"claude_3.5_sonnet", "claude-3-5-sonnet"},
		{"openai/gpt-4o:free", "openai-gpt-4o-free"},
		{"Llama 3.1 (405B)", "llama-3-1-405b"},
		{"Mistral Médium", "mistral-medium"},
		{"--a--b--", "a-b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeToken(tt.in))
		})
	}
}

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gpt-4o-2024-05-13", "gpt-4o"},
		{"claude-3-5-sonnet-20241022", "claude-3-5-sonnet"},
		{"gemini-1.5-pro-002", "gemini-1-5-pro"},
		{"chatgpt-4o-latest", "chatgpt-4o"},
		{"o1-preview", "o1"},
		{"gemini-2.0-flash-exp", "gemini-2-0-flash"},
		{"grok-beta", "grok"},
		{"model-beta-latest", "model"},
		{"gpt-4o-mini", "gpt-4o-mini"},
		{"gpt-3.5-turbo-0125", "gpt-3-5-turbo-0125"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeModelName(tt.in))
		})
	}
}

func TestNormalizeModelName_Idempotent(t *testing.T) {
	inputs := []string{
		"", "GPT-4o-2024-05-13", "claude 3.5 sonnet (20241022)", "gemini-1.5-pro-002-exp",
		"x-001-002-003", "-latest", "o1-mini-2024-09-12-preview", "Llama 3.1 405B Instruct",
		"a--b__c..d", "deepseek/deepseek-r1:free", "model-20250101-beta",
	}
	for _, in := range inputs {
		once := NormalizeModelName(in)
		assert.Equal(t, once, NormalizeModelName(once), "input %q", in)
	}
}

func TestStripDateSuffix(t *testing.T) {
	assert.Equal(t, "GPT-4o", StripDateSuffix("GPT-4o-2024-05-13"))
	assert.Equal(t, "claude-3-5-sonnet", StripDateSuffix("claude-3-5-sonnet-20241022"))
	assert.Equal(t, "gpt-4o-latest", StripDateSuffix("gpt-4o-latest"))
	assert.Equal(t, "gpt-4o", StripDateSuffix("gpt-4o"))
}

func TestStripVersionSuffix(t *testing.T) {
	assert.Equal(t, "Gemini-1.5-Pro", StripVersionSuffix("Gemini-1.5-Pro-002"))
	assert.Equal(t, "gpt-4o", StripVersionSuffix("gpt-4o-2024-05-13-Preview"))
	assert.Equal(t, "o1", StripVersionSuffix("o1-preview"))
	assert.Equal(t, "grok-2", StripVersionSuffix("grok-2-beta-latest"))
	assert.Equal(t, "gpt-4o", StripVersionSuffix("gpt-4o"))
}
