package services

import (
	"strconv"
	"strings"

	"github.com/voicekhata/backend/internal/models"
)

var yesWords = map[string]struct{}{
	"y": {}, "yes": {}, "haan": {}, "haanji": {}, "ha": {}, "ok": {}, "okay": {}, "confirm": {}, "✅": {},
}

var noWords = map[string]struct{}{
	"n": {}, "no": {}, "nahi": {}, "nahin": {}, "cancel": {}, "❌": {},
}

// ParsedDecision is a YES/NO reply, optionally naming the pending id
// ("YES 12" or "no #12").
type ParsedDecision struct {
	Decision  models.Decision
	PendingID int64
}

// ParseDecision recognizes a reply to a confirmation prompt. Anything that
// is not exactly a decision word with an optional id returns false.
func ParseDecision(text string) (ParsedDecision, bool) {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(parts) == 0 || len(parts) > 2 {
		return ParsedDecision{}, false
	}

	word := strings.Trim(parts[0], ".!,")
	var parsed ParsedDecision
	if _, ok := yesWords[word]; ok {
		parsed.Decision = models.DecisionYes
	} else if _, ok := noWords[word]; ok {
		parsed.Decision = models.DecisionNo
	} else {
		return ParsedDecision{}, false
	}

	if len(parts) == 2 {
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.Trim(parts[1], ".!,"), "#"), 10, 64)
		if err != nil || id <= 0 {
			return ParsedDecision{}, false
		}
		parsed.PendingID = id
	}
	return parsed, true
}

// DecisionFromString reads the decision field of the decisions endpoint.
func DecisionFromString(s string) (models.Decision, bool) {
	parsed, ok := ParseDecision(s)
	if !ok || parsed.PendingID != 0 {
		return "", false
	}
	return parsed.Decision, true
}
