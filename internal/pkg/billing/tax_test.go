package billing

import "testing"

func TestPercentPolicyApplyTax(t *testing.T) {
	tests := []struct {
		rate  float64
		price float64
		want  float64
	}{
		{rate: 21, price: 50.00, want: 60.50},
		{rate: 21, price: 9.99, want: 12.09},
		{rate: 19, price: 100.00, want: 119.00},
		{rate: 0, price: 42.50, want: 42.50},
		{rate: 21, price: 0, want: 0},
	}

	for _, tt := range tests {
		p := PercentPolicy{Rate: tt.rate}
		if got := p.ApplyTax(tt.price); got != tt.want {
			t.Fatalf("ApplyTax(%v) at %v%% = %v, want %v", tt.price, tt.rate, got, tt.want)
		}
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 1.005, want: 1.0},
		{in: 1.006, want: 1.01},
		{in: 12.094999, want: 12.09},
		{in: -1.555, want: -1.56},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Fatalf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
