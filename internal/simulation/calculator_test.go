package simulation

import (
	"errors"
	"math"
	"testing"

	"LiqMap/internal/domain/models"
)

func TestTriggerPriceLong(t *testing.T) {
	got, err := TriggerPrice(100, 10, models.SideLong, 0.004)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 100 * (1 - 0.1 + 0.0004)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("long trigger = %v, want %v", got, want)
	}
}

func TestTriggerPriceShort(t *testing.T) {
	got, err := TriggerPrice(100, 10, models.SideShort, 0.004)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 100 * (1 + 0.1 - 0.0004)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("short trigger = %v, want %v", got, want)
	}
}

func TestTriggerPriceInvalidInputs(t *testing.T) {
	cases := []struct {
		name     string
		entry    float64
		leverage int
		side     models.Side
		margin   float64
	}{
		{"zero entry", 0, 10, models.SideLong, 0.004},
		{"negative entry", -5, 10, models.SideLong, 0.004},
		{"zero leverage", 100, 0, models.SideLong, 0.004},
		{"negative leverage", 100, -3, models.SideShort, 0.004},
		{"negative margin", 100, 10, models.SideLong, -0.1},
		{"margin at one", 100, 10, models.SideShort, 1.0},
		{"unknown side", 100, 10, models.Side("sideways"), 0.004},
	}
	for _, tc := range cases {
		if _, err := TriggerPrice(tc.entry, tc.leverage, tc.side, tc.margin); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestTriggerPriceHigherLeverageIsCloser(t *testing.T) {
	prev := 0.0
	for _, lev := range []int{5, 10, 25, 50, 100} {
		trig, err := TriggerPrice(50000, lev, models.SideLong, 0.004)
		if err != nil {
			t.Fatalf("leverage %d: %v", lev, err)
		}
		if trig <= prev {
			t.Fatalf("leverage %d trigger %v not above previous %v", lev, trig, prev)
		}
		if trig >= 50000 {
			t.Fatalf("long trigger %v not below entry", trig)
		}
		prev = trig
	}
}
