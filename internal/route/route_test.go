package route_test

import (
	"testing"

	"github.com/agentcasino/engine/internal/route"
)

func TestParse_Valid(t *testing.T) {
	a, err := route.Parse("slots_spin")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Game != route.GameSlots || a.Action != "spin" {
		t.Errorf("Parse(slots_spin) = %+v", a)
	}
}

func TestParse_LottoActions(t *testing.T) {
	for _, action := range []string{"lotto_buy", "lotto_claim"} {
		if _, err := route.Parse(action); err != nil {
			t.Errorf("Parse(%s): %v", action, err)
		}
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	for _, bad := range []string{"slotsspin", "slots-spin", "SLOTS_SPIN", ""} {
		if _, err := route.Parse(bad); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", bad)
		}
	}
}

func TestParse_RejectsUnknownGame(t *testing.T) {
	if _, err := route.Parse("roulette_spin"); err == nil {
		t.Error("expected ErrUnknownGame for unregistered game")
	}
}

func TestParse_RejectsUnknownAction(t *testing.T) {
	if _, err := route.Parse("slots_claim"); err == nil {
		t.Error("expected ErrUnknownAction for action not registered to slots")
	}
}
