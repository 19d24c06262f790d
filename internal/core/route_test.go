package core

import "testing"

func TestParseAccountPair(t *testing.T) {
	tests := []struct {
		raw    string
		want   AccountPair
		paired bool
	}{
		{"Checking → Savings", AccountPair{"Checking", "Savings"}, true},
		{"Checking->Savings", AccountPair{"Checking", "Savings"}, true},
		{" Cash => Card ", AccountPair{"Cash", "Card"}, true},
		{"Wallet", AccountPair{"Wallet", "Wallet"}, false},
		{"Wallet → ", AccountPair{"Wallet", "Wallet"}, false},
		{" → Savings", AccountPair{"Savings", "Savings"}, false},
		{"→", AccountPair{}, false},
		{"", AccountPair{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, paired := ParseAccountPair(tt.raw)
			if got != tt.want {
				t.Errorf("ParseAccountPair(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
			if paired != tt.paired {
				t.Errorf("ParseAccountPair(%q) paired = %v, want %v", tt.raw, paired, tt.paired)
			}
		})
	}
}

func TestAccountPairString(t *testing.T) {
	if got := (AccountPair{"A", "B"}).String(); got != "A → B" {
		t.Errorf("String() = %q", got)
	}
	if got := (AccountPair{"A", "A"}).String(); got != "A" {
		t.Errorf("String() = %q", got)
	}
	if !(AccountPair{}).IsZero() {
		t.Error("zero pair should report IsZero")
	}
}
