package llm

import "github.com/shopspring/decimal"

// Pricing is a model's cost per million tokens in USD.
type Pricing struct {
	PromptPerMTok     decimal.Decimal
	CompletionPerMTok decimal.Decimal
}

// pricingTable carries per-model rates for the models tenants commonly pick.
// Unknown models fall back to defaultPricing, intentionally on the expensive
// side so budget checks err toward under-spending.
var pricingTable = map[string]Pricing{
	"openai/gpt-4o-mini": {
		PromptPerMTok:     decimal.RequireFromString("0.15"),
		CompletionPerMTok: decimal.RequireFromString("0.60"),
	},
	"openai/gpt-4o": {
		PromptPerMTok:     decimal.RequireFromString("2.50"),
		CompletionPerMTok: decimal.RequireFromString("10.00"),
	},
	"anthropic/claude-3.5-sonnet": {
		PromptPerMTok:     decimal.RequireFromString("3.00"),
		CompletionPerMTok: decimal.RequireFromString("15.00"),
	},
	"anthropic/claude-3.5-haiku": {
		PromptPerMTok:     decimal.RequireFromString("0.80"),
		CompletionPerMTok: decimal.RequireFromString("4.00"),
	},
}

var defaultPricing = Pricing{
	PromptPerMTok:     decimal.RequireFromString("5.00"),
	CompletionPerMTok: decimal.RequireFromString("15.00"),
}

var million = decimal.NewFromInt(1_000_000)

// PricingFor returns the rate card for a model id.
func PricingFor(model string) Pricing {
	if p, ok := pricingTable[model]; ok {
		return p
	}

	return defaultPricing
}

// Cost computes the USD cost of one call.
func (p Pricing) Cost(promptTokens, completionTokens int) decimal.Decimal {
	prompt := p.PromptPerMTok.Mul(decimal.NewFromInt(int64(promptTokens))).Div(million)
	completion := p.CompletionPerMTok.Mul(decimal.NewFromInt(int64(completionTokens))).Div(million)

	return prompt.Add(completion)
}
