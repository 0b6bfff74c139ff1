package plan

import "testing"

func TestForTier(t *testing.T) {
	if got := ForTier(TierBasic); got.MaxMonthlyAppointments != 100 || got.EmailNotifications {
		t.Fatalf("unexpected basic features: %+v", got)
	}
	if got := ForTier(TierPremium); got.MaxMonthlyAppointments != 500 || !got.EmailNotifications {
		t.Fatalf("unexpected premium features: %+v", got)
	}
	if got := ForTier(TierEnterprise); got.MaxServices != 200 || !got.Analytics {
		t.Fatalf("unexpected enterprise features: %+v", got)
	}
}

func TestForTier_UnknownFallsBackToBasic(t *testing.T) {
	if got := ForTier("platinum"); got != ForTier(TierBasic) {
		t.Fatalf("unknown tier should map to basic, got %+v", got)
	}
}

func TestKnown(t *testing.T) {
	for _, tier := range []string{TierBasic, TierPremium, TierEnterprise} {
		if !Known(tier) {
			t.Fatalf("%s should be known", tier)
		}
	}
	if Known("platinum") {
		t.Fatal("platinum should not be known")
	}
}
