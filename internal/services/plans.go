package services

// PlanConfig represents a subscription plan configuration.
type PlanConfig struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Amount   float64  `json:"amount"`
	Currency string   `json:"currency"`
	Interval string   `json:"interval"` // monthly, yearly
	Features []string `json:"features"`
}

// Predefined plans. The free tier is what a tenant falls back to when no
// non-terminal subscription exists.
var availablePlans = map[string]PlanConfig{
	"free": {
		ID:       "free",
		Name:     "Free",
		Amount:   0,
		Currency: "USD",
		Interval: "monthly",
		Features: []string{
			"expense_tracking",
			"receipt_upload",
		},
	},
	"starter": {
		ID:       "starter",
		Name:     "Starter",
		Amount:   19.0,
		Currency: "USD",
		Interval: "monthly",
		Features: []string{
			"expense_tracking",
			"receipt_upload",
			"invoicing",
			"ocr_receipts",
			"multi_currency",
		},
	},
	"business": {
		ID:       "business",
		Name:     "Business",
		Amount:   49.0,
		Currency: "USD",
		Interval: "monthly",
		Features: []string{
			"expense_tracking",
			"receipt_upload",
			"invoicing",
			"ocr_receipts",
			"multi_currency",
			"api_access",
			"unlimited_seats",
			"priority_support",
		},
	},
}

// planHasFeature reports whether a plan includes a feature. Unknown plans
// fall back to the free tier.
func planHasFeature(planID, feature string) bool {
	plan, ok := availablePlans[planID]
	if !ok {
		plan = availablePlans["free"]
	}
	for _, f := range plan.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// AvailablePlans returns a copy of the plan table.
func AvailablePlans() map[string]PlanConfig {
	result := make(map[string]PlanConfig, len(availablePlans))
	for k, v := range availablePlans {
		result[k] = v
	}
	return result
}
