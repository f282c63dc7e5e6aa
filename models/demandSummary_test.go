package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeDemand(t *testing.T) {
	cases := []struct {
		name           string
		totalOrdered   string
		availableStock string
		want           string
	}{
		{"shortfall", "10", "4", "6"},
		{"exactly covered", "10", "10", "0"},
		{"surplus floors at zero", "3", "10", "0"},
		{"no orders", "0", "5", "0"},
		{"no stock", "7", "0", "7"},
		{"fractional quantities", "2.5", "1.25", "1.25"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ordered := decimal.RequireFromString(tc.totalOrdered)
			available := decimal.RequireFromString(tc.availableStock)
			want := decimal.RequireFromString(tc.want)
			if got := ComputeDemand(ordered, available); !got.Equal(want) {
				t.Errorf("ComputeDemand(%s, %s) = %s, want %s", ordered, available, got, want)
			}
		})
	}
}
