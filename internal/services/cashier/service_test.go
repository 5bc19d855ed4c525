package cashier

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNetUtility(t *testing.T) {
	tests := []struct {
		name     string
		sales    string
		expenses string
		want     string
	}{
		{name: "profitable shift", sales: "850.00", expenses: "120.50", want: "729.50"},
		{name: "loss-making shift", sales: "40.00", expenses: "95.00", want: "-55.00"},
		{name: "empty shift", sales: "0", expenses: "0", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NetUtility(
				decimal.RequireFromString(tt.sales),
				decimal.RequireFromString(tt.expenses),
			)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("NetUtility() = %s, want %s", got, tt.want)
			}
		})
	}
}
