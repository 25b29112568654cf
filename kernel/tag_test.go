package kernel

import "testing"

func TestGridTagRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		leg1, leg2   string
		entry, exit  float64
		direction    string
		sizeFraction float64
	}{
		{"short spread", "IVV", "SPY", 0.015, 0.002, DirectionShortSpread, 0.25},
		{"long spread", "GLD", "IAU", -0.003, 0.0001, DirectionLongSpread, 1.0},
		{"crypto legs", "BTCUSDT", "BTCUSDC", 0.0005, 0.0, DirectionShortSpread, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lp := NewGridLevelPair(tt.entry, tt.exit, tt.direction, tt.sizeFraction)
			tag := EncodeGridTag(tt.leg1, tt.leg2, lp)

			leg1, leg2, decoded, ok := DecodeGridTag(tag)
			if !ok {
				t.Fatalf("DecodeGridTag(%q) failed", tag)
			}
			if leg1 != tt.leg1 || leg2 != tt.leg2 {
				t.Errorf("legs = (%s, %s), want (%s, %s)", leg1, leg2, tt.leg1, tt.leg2)
			}
			if decoded.NaturalKey() != lp.NaturalKey() {
				t.Errorf("natural key = %s, want %s", decoded.NaturalKey(), lp.NaturalKey())
			}
			if decoded.Exit.Direction != oppositeDirection(tt.direction) {
				t.Errorf("exit direction = %s, want opposite of %s", decoded.Exit.Direction, tt.direction)
			}

			// deterministic: encoding the decoded values reproduces the tag
			if again := EncodeGridTag(leg1, leg2, decoded); again != tag {
				t.Errorf("re-encoded tag = %q, want %q", again, tag)
			}
		})
	}
}

func TestDecodeGridTagMalformed(t *testing.T) {
	malformed := []string{
		"",
		"not a tag",
		"PAIR|IVV|SPY",                                  // too few fields
		"PAIR|IVV|SPY|x|0.0020|SHORT_SPREAD|0.2500",     // bad entry spread
		"PAIR|IVV|SPY|0.0150|y|SHORT_SPREAD|0.2500",     // bad exit spread
		"PAIR|IVV|SPY|0.0150|0.0020|SIDEWAYS|0.2500",    // bad direction
		"PAIR|IVV|SPY|0.0150|0.0020|SHORT_SPREAD|nan%%", // bad size
		"GRID|IVV|SPY|0.0150|0.0020|SHORT_SPREAD|0.25",  // wrong prefix
		"PAIR||SPY|0.0150|0.0020|SHORT_SPREAD|0.2500",   // empty leg
	}

	for _, tag := range malformed {
		if _, _, _, ok := DecodeGridTag(tag); ok {
			t.Errorf("DecodeGridTag(%q) = ok, want failure", tag)
		}
	}
}
