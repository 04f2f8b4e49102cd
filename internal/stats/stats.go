package stats

import (
	"math"

	"chatrecall/internal/providers"
	"chatrecall/internal/settings"
)

// ChatStats is returned with every chat answer and never persisted.
// DBMs is nil when nothing was written.
type ChatStats struct {
	Provider         settings.Provider `json:"provider"`
	Model            string            `json:"model"`
	LLMMs            int64             `json:"llmMs"`
	DBMs             *int64            `json:"dbMs"`
	PromptTokens     int               `json:"promptTokens"`
	CompletionTokens int               `json:"completionTokens"`
	TotalTokens      int               `json:"totalTokens"`
	TokensPerSecond  *float64          `json:"tokensPerSecond"`
}

func Compute(provider settings.Provider, res providers.Result, llmMs int64, dbMs *int64) ChatStats {
	if llmMs < 0 {
		llmMs = 0
	}
	if dbMs != nil && *dbMs < 0 {
		zero := int64(0)
		dbMs = &zero
	}
	return ChatStats{
		Provider:         provider,
		Model:            res.Model,
		LLMMs:            llmMs,
		DBMs:             dbMs,
		PromptTokens:     providers.Tokens(res.PromptTokens),
		CompletionTokens: providers.Tokens(res.CompletionTokens),
		TotalTokens:      providers.Tokens(res.TotalTokens),
		TokensPerSecond:  TokensPerSecond(res.CompletionTokens, llmMs),
	}
}

// TokensPerSecond is completion throughput rounded to one decimal, or nil
// when there is nothing meaningful to report.
func TokensPerSecond(completionTokens int, llmMs int64) *float64 {
	if completionTokens <= 0 || llmMs <= 0 {
		return nil
	}
	v := math.Round(float64(completionTokens)/(float64(llmMs)/1000)*10) / 10
	return &v
}
