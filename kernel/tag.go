package kernel

import (
	"fmt"
	"strconv"
	"strings"
)

// Grid tags are attached to every order so that resulting fills can be routed
// back to the exact (pair, level) position that originated them. The encoding
// is a deterministic natural key: identical inputs always produce identical
// tags, and a tag fully identifies its pair and level values.
//
// Format: PAIR|<leg1>|<leg2>|<entry%.4f>|<exit%.4f>|<direction>|<size%.4f>

const tagPrefix = "PAIR"
const tagSeparator = "|"

// EncodeGridTag builds the routing tag for a (pair, level pair) combination
func EncodeGridTag(leg1, leg2 string, lp *GridLevelPair) string {
	return strings.Join([]string{
		tagPrefix,
		leg1,
		leg2,
		fmt.Sprintf("%.4f", lp.Entry.Spread),
		fmt.Sprintf("%.4f", lp.Exit.Spread),
		lp.Entry.Direction,
		fmt.Sprintf("%.4f", lp.Entry.SizeFraction),
	}, tagSeparator)
}

// DecodeGridTag parses a grid tag back into leg identities and level values.
// Malformed or empty input returns ok=false, never panics.
func DecodeGridTag(tag string) (leg1, leg2 string, lp *GridLevelPair, ok bool) {
	if tag == "" {
		return "", "", nil, false
	}

	parts := strings.Split(tag, tagSeparator)
	if len(parts) != 7 || parts[0] != tagPrefix {
		return "", "", nil, false
	}

	leg1, leg2 = parts[1], parts[2]
	if leg1 == "" || leg2 == "" {
		return "", "", nil, false
	}

	entrySpread, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return "", "", nil, false
	}
	exitSpread, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return "", "", nil, false
	}

	direction := parts[5]
	if direction != DirectionLongSpread && direction != DirectionShortSpread {
		return "", "", nil, false
	}

	sizeFraction, err := strconv.ParseFloat(parts[6], 64)
	if err != nil {
		return "", "", nil, false
	}

	return leg1, leg2, NewGridLevelPair(entrySpread, exitSpread, direction, sizeFraction), true
}
