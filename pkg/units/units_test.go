package units

import (
	"math/big"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %s", s)
	}
	return v
}

func TestToWei(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.001", "1000000000000000", false},
		{"14000", "14000000000000000000000", false},
		{"13.486", "13486000000000000000", false},
		{"0.000000000000000001", "1", false},
		{"1.000000000000000000000", "1000000000000000000", false}, // trailing zeros are exact
		{"0.0000000000000000001", "", true},
		{"abc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ToWei(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ToWei(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got.Cmp(mustBig(t, tt.want)) != 0 {
			t.Errorf("ToWei(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFromWei(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1000000000000000", "0.001"},
		{"14000000000000000000", "14"},
		{"13486000000000000000", "13.486"},
		{"514000000000000000", "0.514"},
		{"0", "0"},
	}
	for _, tt := range tests {
		if got := FromWei(mustBig(t, tt.in)); got != tt.want {
			t.Errorf("FromWei(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if FromWei(nil) != "0" {
		t.Error("FromWei(nil) should be 0")
	}
}

func TestBaseUnitsOtherDecimals(t *testing.T) {
	got, err := ToBaseUnits("1.5", 6)
	if err != nil {
		t.Fatal(err)
	}
	if got.Int64() != 1_500_000 {
		t.Errorf("ToBaseUnits(1.5, 6) = %s", got)
	}
	if _, err := ToBaseUnits("1.0000001", 6); err == nil {
		t.Error("expected precision error")
	}
	if FromBaseUnits(big.NewInt(1_500_000), 6) != "1.5" {
		t.Error("FromBaseUnits(1500000, 6) != 1.5")
	}
}

func TestMultiplyFactorFromPercent(t *testing.T) {
	tests := []struct {
		pct     string
		want    string
		wantErr bool
	}{
		{"1", "1010000000000000000", false},
		{"-1", "990000000000000000", false},
		{"10", "1100000000000000000", false},
		{"-10", "900000000000000000", false},
		{"0", "1000000000000000000", false},
		{"0.5", "1005000000000000000", false},
		{"-100", "", true},
		{"-150", "", true},
		{"0.00000000000000001", "", true},
		{"x", "", true},
	}

	for _, tt := range tests {
		got, err := MultiplyFactorFromPercent(tt.pct)
		if (err != nil) != tt.wantErr {
			t.Fatalf("MultiplyFactorFromPercent(%q) err = %v, wantErr %v", tt.pct, err, tt.wantErr)
		}
		if err == nil && got.Cmp(mustBig(t, tt.want)) != 0 {
			t.Errorf("MultiplyFactorFromPercent(%q) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestMulPrice(t *testing.T) {
	amount := mustBig(t, "1000000000000000")     // 0.001
	price := mustBig(t, "14000000000000000000000") // 14000
	if got := MulPrice(amount, price); got.Cmp(mustBig(t, "14000000000000000000")) != 0 {
		t.Errorf("MulPrice = %s, want 14e18", got)
	}
}
