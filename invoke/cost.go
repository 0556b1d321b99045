package invoke

import "strings"

// modelPricing holds USD cost per million input/output units. Identifiers are
// matched by substring so dated model revisions share an entry.
type modelPricing struct {
	substr string
	input  float64
	output float64
}

var pricingTable = []modelPricing{
	{"claude-3-5-haiku", 0.80, 4.00},
	{"claude-3-5-sonnet", 3.00, 15.00},
	{"claude-3-opus", 15.00, 75.00},
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.00},
	{"nova-lite", 0.06, 0.24},
	{"nova-pro", 0.80, 3.20},
}

// estimateCost computes a non-negative cost from reported usage. Unknown
// models cost zero rather than being treated as errors.
func estimateCost(modelID string, usage Usage) float64 {
	lower := strings.ToLower(modelID)
	for _, p := range pricingTable {
		if strings.Contains(lower, p.substr) {
			in := float64(usage.InputUnits) / 1_000_000 * p.input
			out := float64(usage.OutputUnits) / 1_000_000 * p.output
			return in + out
		}
	}
	return 0
}
