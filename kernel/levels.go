package kernel

import "fmt"

// Grid level kind
const (
	LevelKindEntry = "ENTRY"
	LevelKindExit  = "EXIT"
)

// GridLevel is one configured spread threshold at which to act.
// Immutable once constructed.
type GridLevel struct {
	Spread       float64 // spread threshold, relative (0.01 = 1%)
	Direction    string  // DirectionLongSpread or DirectionShortSpread
	Kind         string  // LevelKindEntry or LevelKindExit
	SizeFraction float64 // fraction of total position size allocated to this level
}

// GridLevelPair couples an entry level with its automatically derived exit
// level. The exit always trades the opposite direction of the entry.
type GridLevelPair struct {
	Entry *GridLevel
	Exit  *GridLevel
}

// NewGridLevelPair builds an entry level plus the derived exit level
func NewGridLevelPair(entrySpread, exitSpread float64, direction string, sizeFraction float64) *GridLevelPair {
	return &GridLevelPair{
		Entry: &GridLevel{
			Spread:       entrySpread,
			Direction:    direction,
			Kind:         LevelKindEntry,
			SizeFraction: sizeFraction,
		},
		Exit: &GridLevel{
			Spread:       exitSpread,
			Direction:    oppositeDirection(direction),
			Kind:         LevelKindExit,
			SizeFraction: sizeFraction,
		},
	}
}

func oppositeDirection(direction string) string {
	if direction == DirectionLongSpread {
		return DirectionShortSpread
	}
	return DirectionLongSpread
}

// NaturalKey is the 4-decimal identity of this level pair, used to address
// positions and to build grid tags
func (lp *GridLevelPair) NaturalKey() string {
	return fmt.Sprintf("%.4f_%.4f_%s_%.4f",
		lp.Entry.Spread, lp.Exit.Spread, lp.Entry.Direction, lp.Entry.SizeFraction)
}
