package llm

import "time"

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute

	rateLimitBurst = 5

	// confidence scale is integer percent.
	minConfidence = 0
	maxConfidence = 100

	// minVerifiableRunes marks texts too short for stage 1 to judge
	// reliably; under the smart policy they are always re-checked.
	minVerifiableRunes = 20
)
