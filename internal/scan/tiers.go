package scan

import "strings"

// Unlimited marks a tier with no daily scan cap.
const Unlimited = -1

// tierLimits is the daily scan quota per subscription tier. Free users
// cannot trigger scans at all; unknown tiers are treated as free.
var tierLimits = map[string]int{
	"free":       0,
	"starter":    100,
	"pro":        500,
	"enterprise": Unlimited,
	"unlimited":  Unlimited,
}

// TierLimit resolves a tier name to its daily scan quota.
func TierLimit(tier string) int {
	limit, ok := tierLimits[strings.ToLower(strings.TrimSpace(tier))]
	if !ok {
		return 0
	}
	return limit
}
