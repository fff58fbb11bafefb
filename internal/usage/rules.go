package usage

import "time"

// Rules maps an operation name to its rule list, one rule per tier. The table
// is built once at startup and never mutated afterwards.
type Rules map[string][]Rule

// DefaultRules returns the production rule table. The first rule declared for
// an operation doubles as the fallback for tiers without an explicit entry,
// so the base tier is always listed first.
func DefaultRules() Rules {
	return Rules{
		OpGenerateAvatar: {
			{Window: 60 * time.Second, MaxRequests: 5, Tier: TierBase},
			{Window: 60 * time.Second, MaxRequests: 20, Tier: TierElevated},
			{Window: 60 * time.Second, MaxRequests: 1000, Tier: TierUnlimited},
		},
		OpDownloadAvatar: {
			{Window: 60 * time.Second, MaxRequests: 10, Tier: TierBase},
			{Window: 60 * time.Second, MaxRequests: 40, Tier: TierElevated},
			{Window: 60 * time.Second, MaxRequests: 1000, Tier: TierUnlimited},
		},
	}
}

// Operations returns the operation names known to the table.
func (r Rules) Operations() []string {
	ops := make([]string, 0, len(r))
	for op := range r {
		ops = append(ops, op)
	}
	return ops
}

// resolve picks the rule for (operation, tier). A tier without an explicit
// entry falls back to the operation's first declared rule. ok is false only
// when the operation itself is unknown to the table.
func (r Rules) resolve(operation string, tier Tier) (Rule, bool) {
	rules, ok := r[operation]
	if !ok || len(rules) == 0 {
		return Rule{}, false
	}
	for _, rule := range rules {
		if rule.Tier == tier {
			return rule, true
		}
	}
	return rules[0], true
}
