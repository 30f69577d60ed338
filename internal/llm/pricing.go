package llm

// modelRates holds metered prices in USD per 1K tokens for one model.
type modelRates struct {
	Input  float64
	Output float64
}

// defaultCloudRates is the fallback pricing for cloud models missing from an
// adapter's table.
var defaultCloudRates = modelRates{Input: 0.003, Output: 0.015}

// openAIRates prices OpenAI chat models, USD per 1K tokens.
var openAIRates = map[string]modelRates{
	"gpt-4o":      {Input: 0.0025, Output: 0.01},
	"gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo": {Input: 0.01, Output: 0.03},
}

// anthropicRates prices Anthropic models, USD per 1K tokens.
var anthropicRates = map[string]modelRates{
	"claude-3-5-sonnet-20241022": {Input: 0.003, Output: 0.015},
	"claude-3-5-haiku-20241022":  {Input: 0.0008, Output: 0.004},
	"claude-3-opus-20240229":     {Input: 0.015, Output: 0.075},
}

// estimate computes the cost of a call against a pricing table, falling back
// to defaultCloudRates for unlisted models.
func estimate(table map[string]modelRates, model string, inputTokens, outputTokens int) float64 {
	rates, ok := table[model]
	if !ok {
		rates = defaultCloudRates
	}
	return float64(inputTokens)/1000*rates.Input + float64(outputTokens)/1000*rates.Output
}
