package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{" 7 ", "7.00", true},
		{"12.345", "12.35", true},
		{"0.004", "", false},
		{"0", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"", "", false},
		{"999999999999.99", "999999999999.99", true},
		{"999999999999,994", "999999999999.99", true},
		{"1.5e2", "150.00", true},
		{"1e12", "", false},
		{"999999999999.995", "", false},
		{"1e10000000", "", false},
		{"1e2000000000", "", false},
		{"1e-2000000000", "", false},
		{"0e2000000000", "", false},
		{"1" + strings.Repeat("0", 100), "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Errorf("ParseAmount(%q) unexpected error %v", tc.in, err)
				continue
			}
			if FormatAmount(got) != tc.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tc.in, FormatAmount(got), tc.want)
			}
		} else if err == nil {
			t.Errorf("ParseAmount(%q) expected error, got %s", tc.in, got)
		}
	}
}

func TestParseAmountTooLarge(t *testing.T) {
	for _, in := range []string{"1e12", "1e10000000", "1e2000000000", "1000000000000", "999999999999.995"} {
		start := time.Now()
		_, err := ParseAmount(in)
		if !errors.Is(err, ErrAmountTooLarge) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrAmountTooLarge", in, err)
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Errorf("ParseAmount(%q) took %v", in, d)
		}
	}
}
