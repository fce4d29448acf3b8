package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricingCost(t *testing.T) {
	p := PricingFor("openai/gpt-4o-mini")

	// 1M prompt + 1M completion tokens at the listed rates.
	cost := p.Cost(1_000_000, 1_000_000)
	assert.Equal(t, "0.75", cost.String())

	// Zero tokens cost nothing.
	assert.True(t, p.Cost(0, 0).IsZero())
}

func TestPricingForUnknownModel(t *testing.T) {
	p := PricingFor("vendor/some-future-model")

	// Unknown models use the conservative default card.
	assert.Equal(t, defaultPricing, p)
	assert.True(t, p.Cost(1000, 1000).IsPositive())
}
