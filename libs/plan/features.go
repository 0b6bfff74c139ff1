// Package plan maps subscription tiers to the limits and features they buy.
// The table is the single source of truth; services never hardcode limits.
package plan

const (
	TierBasic      = "basic"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
)

type Features struct {
	MaxServices            int
	MaxStaff               int
	MaxMonthlyAppointments int
	EmailNotifications     bool
	Analytics              bool
}

var features = map[string]Features{
	TierBasic: {
		MaxServices:            10,
		MaxStaff:               3,
		MaxMonthlyAppointments: 100,
		EmailNotifications:     false,
		Analytics:              false,
	},
	TierPremium: {
		MaxServices:            50,
		MaxStaff:               15,
		MaxMonthlyAppointments: 500,
		EmailNotifications:     true,
		Analytics:              true,
	},
	TierEnterprise: {
		MaxServices:            200,
		MaxStaff:               100,
		MaxMonthlyAppointments: 2000,
		EmailNotifications:     true,
		Analytics:              true,
	},
}

// ForTier returns the feature set for a tier, treating unknown tiers as basic.
func ForTier(tier string) Features {
	if f, ok := features[tier]; ok {
		return f
	}
	return features[TierBasic]
}

// Known reports whether the tier is one the platform sells.
func Known(tier string) bool {
	_, ok := features[tier]
	return ok
}
