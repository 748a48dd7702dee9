package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackResponseKeywordRouting(t *testing.T) {
	cases := []struct {
		prompt   string
		expected string
	}{
		{"Please draft a new section about sensors", draftSectionTemplate},
		{"CREATE an overview", draftSectionTemplate},
		{"rewrite this paragraph", rewriteContentTemplate},
		{"can you improve my text", rewriteContentTemplate},
		{"generate some questions for me", generateQuestionsTemplate},
		{"I want to ask about the wiring", generateQuestionsTemplate},
		{"analyze my notebook", gapAnalysisTemplate},
		{"find the gap in my documentation", gapAnalysisTemplate},
		{"hello there", genericFallbackResponse},
		{"", genericFallbackResponse},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, FallbackResponse(tc.prompt), "prompt: %q", tc.prompt)
	}
}

func TestFallbackResponseFirstRuleWins(t *testing.T) {
	// "draft" 和 "rewrite" 同时出现时，规则表顺序决定结果
	assert.Equal(t, draftSectionTemplate, FallbackResponse("draft and rewrite this"))
}

func TestFallbackResponseIsPure(t *testing.T) {
	prompt := "analyze the gaps please"
	first := FallbackResponse(prompt)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, FallbackResponse(prompt))
	}
}
