package detect

import "strings"

// Lexical indicator vocabularies for free-text model output. Matching is
// case-insensitive substring search; each distinct indicator counts once.
var positiveIndicators = []string{
	"detected",
	"visible",
	"present",
	"found",
	"spotted",
	"observed",
	"appears",
	"flying",
	"perched",
	"movement",
}

var negativeIndicators = []string{
	"no",
	"not detected",
	"not visible",
	"not present",
	"absent",
	"cannot see",
	"unable to detect",
}

// Classify turns free-text model output into a detection decision with a
// confidence score. It is pure and deterministic; callers must treat it as
// the sole source of truth for what a given string classifies to.
//
// Decision order: a positive majority wins, then a negative majority, then
// the tie branch (detected=false, 0.3). Empty or whitespace-only text is a
// parse failure (detected=false, 0.1), not a tie.
func Classify(text string) (bool, float64) {
	if strings.TrimSpace(text) == "" {
		return false, 0.1
	}

	lower := strings.ToLower(text)

	var positiveScore, negativeScore int
	for _, ind := range positiveIndicators {
		if strings.Contains(lower, ind) {
			positiveScore++
		}
	}
	for _, ind := range negativeIndicators {
		if strings.Contains(lower, ind) {
			negativeScore++
		}
	}

	switch {
	case positiveScore > negativeScore && positiveScore > 0:
		return true, clampConfidence(0.5 + 0.1*float64(positiveScore))
	case negativeScore > positiveScore:
		return false, clampConfidence(0.5 + 0.1*float64(negativeScore))
	default:
		return false, 0.3
	}
}

func clampConfidence(c float64) float64 {
	if c > 0.95 {
		return 0.95
	}
	return c
}
