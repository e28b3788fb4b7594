package fixedpoint

import "testing"

func TestConvert(t *testing.T) {
	tests := []struct {
		n int
	}{{0}, {1}, {-1}, {63}, {-20}, {131071}}
	for _, tt := range tests {
		if got := FromInt(tt.n).Trunc(); got != tt.n {
			t.Errorf("FromInt(%d).Trunc() = %d", tt.n, got)
		}
		if got := FromInt(tt.n).Round(); got != tt.n {
			t.Errorf("FromInt(%d).Round() = %d", tt.n, got)
		}
	}
}

func TestTruncAndRound(t *testing.T) {
	half := FromInt(1).DivInt(2)
	tests := []struct {
		name  string
		x     FP
		trunc int
		round int
	}{
		{"2.5", FromInt(2).Add(half), 2, 3},
		{"-2.5", FromInt(-2).Sub(half), -2, -3},
		{"1.25", FromInt(5).DivInt(4), 1, 1},
		{"-1.75", FromInt(-7).DivInt(4), -1, -2},
		{"0.49", FromInt(49).DivInt(100), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.Trunc(); got != tt.trunc {
				t.Errorf("Trunc() = %d, want %d", got, tt.trunc)
			}
			if got := tt.x.Round(); got != tt.round {
				t.Errorf("Round() = %d, want %d", got, tt.round)
			}
		})
	}
}

func TestArithmetic(t *testing.T) {
	a := FromInt(3)
	b := FromInt(4)

	if got := a.Add(b).Trunc(); got != 7 {
		t.Errorf("3+4 = %d", got)
	}
	if got := a.Sub(b).Trunc(); got != -1 {
		t.Errorf("3-4 = %d", got)
	}
	if got := a.AddInt(10).Trunc(); got != 13 {
		t.Errorf("3+10 = %d", got)
	}
	if got := a.SubInt(10).Trunc(); got != -7 {
		t.Errorf("3-10 = %d", got)
	}
	if got := a.Mul(b).Trunc(); got != 12 {
		t.Errorf("3*4 = %d", got)
	}
	if got := b.Div(a).Hundredths(); got != 133 {
		t.Errorf("4/3 = %d hundredths, want 133", got)
	}
	if got := a.MulInt(-5).Trunc(); got != -15 {
		t.Errorf("3*-5 = %d", got)
	}
	if got := b.DivInt(8).Hundredths(); got != 50 {
		t.Errorf("4/8 = %d hundredths, want 50", got)
	}
}

// 乘除的中间结果超过 32 位也不能溢出
func TestWideIntermediate(t *testing.T) {
	big := FromInt(100000)
	if got := big.Mul(FromInt(1)).Trunc(); got != 100000 {
		t.Errorf("100000*1 = %d", got)
	}
	if got := big.Div(FromInt(1000)).Trunc(); got != 100 {
		t.Errorf("100000/1000 = %d", got)
	}
	if got := FromInt(59).DivInt(60).Mul(big).Trunc(); got != 98327 {
		t.Errorf("59/60*100000 = %d, want 98327", got)
	}
}

func TestLoadAvgStep(t *testing.T) {
	// load_avg = 59/60*0 + 1/60*1
	var load FP
	load = FromInt(59).DivInt(60).Mul(load).Add(FromInt(1).DivInt(60).MulInt(1))
	if got := load.Hundredths(); got != 2 {
		t.Errorf("load_avg*100 = %d, want 2", got)
	}
	if got := load.String(); got != "0.02" {
		t.Errorf("String() = %q", got)
	}
}

func TestString(t *testing.T) {
	if got := FromInt(-3).DivInt(2).String(); got != "-1.50" {
		t.Errorf("String() = %q, want -1.50", got)
	}
	if got := FromInt(12).String(); got != "12.00" {
		t.Errorf("String() = %q, want 12.00", got)
	}
}
