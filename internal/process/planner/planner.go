// Package planner decides, before any LLM call, how many of a run's
// candidates the remaining budget can afford and how they are batched.
package planner

import "github.com/shopspring/decimal"

// Plan is the budget-constrained processing plan for one run.
type Plan struct {
	ToProcess    int
	ToSkip       int
	BatchSize    int
	TotalBatches int
	Exhausted    bool
}

// Build computes the plan for n candidates given the remaining budget and a
// conservative per-message cost estimate. Affordability is decided up front;
// messages past the affordable count are skipped, never silently dropped.
func Build(n int, remaining, perMessageEstimate decimal.Decimal, batchSize int) Plan {
	if batchSize < 1 {
		batchSize = 1
	}

	if n <= 0 {
		return Plan{BatchSize: batchSize}
	}

	if remaining.IsNegative() || remaining.IsZero() {
		return Plan{ToSkip: n, BatchSize: batchSize, Exhausted: true}
	}

	affordable := n
	if perMessageEstimate.IsPositive() {
		affordable = int(remaining.Div(perMessageEstimate).IntPart())
	}

	if affordable >= n {
		return Plan{
			ToProcess:    n,
			BatchSize:    batchSize,
			TotalBatches: batches(n, batchSize),
		}
	}

	return Plan{
		ToProcess:    affordable,
		ToSkip:       n - affordable,
		BatchSize:    batchSize,
		TotalBatches: batches(affordable, batchSize),
		Exhausted:    affordable == 0,
	}
}

func batches(n, size int) int {
	if n <= 0 {
		return 0
	}

	return (n + size - 1) / size
}
