package core

import "testing"

func TestMoneyInputDirty(t *testing.T) {
	cases := []struct {
		name      string
		draft     string
		persisted int64
		currency  Currency
		want      bool
	}{
		{"identical canonical", "12.34", 1234, USD, false},
		{"empty equals zero", "", 0, USD, false},
		{"zero equals zero", "0.00", 0, USD, false},
		{"formatting noise ignored", "$1,234.00", 123400, USD, false},
		{"actually changed", "12.35", 1234, USD, true},
		{"krw grouped equals plain", "12,000", 12000, KRW, false},
		{"krw changed", "12,001", 12000, KRW, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MoneyInputDirty(tc.draft, tc.persisted, tc.currency); got != tc.want {
				t.Fatalf("MoneyInputDirty(%q, %d) = %v, want %v", tc.draft, tc.persisted, got, tc.want)
			}
		})
	}
}

func TestTextDirty(t *testing.T) {
	cases := []struct {
		draft     string
		persisted string
		want      bool
	}{
		{"groceries", "groceries", false},
		{"  groceries  ", "groceries", false},
		{"groceries", "dining", true},
		{"", "", false},
		{" ", "", false},
	}
	for _, tc := range cases {
		if got := TextDirty(tc.draft, tc.persisted); got != tc.want {
			t.Errorf("TextDirty(%q, %q) = %v, want %v", tc.draft, tc.persisted, got, tc.want)
		}
	}
}
