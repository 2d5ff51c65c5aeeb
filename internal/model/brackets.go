package model

// scoreBrackets is the fixed, ordered table of final combined-score ranges.
var scoreBrackets = [...]string{
	"0-50",
	"51-80",
	"81-100",
	"101-120",
	"121-140",
	"141-160",
	"161-180",
	"181-200",
	"201-220",
	"221-240",
	"241+",
}

// BracketCount is the number of score brackets. Valid indexes are 1..BracketCount.
const BracketCount = len(scoreBrackets)

// ScoreBrackets returns a copy of the bracket table in order.
func ScoreBrackets() []string {
	out := make([]string, BracketCount)
	copy(out, scoreBrackets[:])
	return out
}

// ValidBracket reports whether index addresses a bracket (1-indexed).
func ValidBracket(index int) bool {
	return index >= 1 && index <= BracketCount
}

// BracketLabel returns the range for a 1-indexed bracket.
func BracketLabel(index int) (string, bool) {
	if !ValidBracket(index) {
		return "", false
	}
	return scoreBrackets[index-1], true
}
