package services

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/voicekhata/backend/internal/models"
)

// Fixed confidence band of the keyword parser. Model answers carry their own
// score, so callers can tell the two paths apart only by this value.
const (
	HeuristicMatchConfidence   = 0.7
	HeuristicUnknownConfidence = 0.1
)

var (
	undoKeywords       = regexp.MustCompile(`(?i)\b(undo|galti|galat|hatao|hata do|mitao|mita do|wapas lo|delete last|remove last|cancel last)\b`)
	summaryKeywords    = regexp.MustCompile(`(?i)\b(summary|ledger|khata|hisaab|hisab|sabka|report)\b`)
	totalKeywords      = regexp.MustCompile(`(?i)\b(total|kitna|kitne|how much|balance|baki|baaki|bakaya)\b`)
	amountPattern      = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	possessiveMarker   = regexp.MustCompile(`(?i)\s(ko|ka|ki|ke)\b`)
	trailingPossessive = regexp.MustCompile(`(?i)\s+(ko|ka|ki|ke)\s*$`)
)

// fillerWords never form part of a customer name.
var fillerWords = map[string]struct{}{
	"add": {}, "karo": {}, "kar": {}, "likho": {}, "likh": {}, "udhaar": {}, "udhar": {}, "udhari": {},
	"credit": {}, "rs": {}, "rs.": {}, "inr": {}, "rupees": {}, "rupaye": {}, "rupay": {}, "₹": {},
	"diya": {}, "de": {}, "do": {}, "dena": {}, "hai": {}, "tha": {}, "the": {}, "of": {}, "for": {},
	"to": {}, "is": {}, "does": {}, "owe": {}, "owes": {}, "ko": {}, "ka": {}, "ki": {}, "ke": {},
	"total": {}, "kitna": {}, "kitne": {}, "balance": {}, "baki": {}, "baaki": {}, "bakaya": {},
	"please": {}, "pls": {}, "plz": {}, "ji": {}, "bhai": {},
}

type heuristicRule func(text string) (models.IntentResult, bool)

// heuristicRules is evaluated in order; the first match wins.
var heuristicRules = []heuristicRule{
	matchUndo,
	matchSummary,
	matchTotal,
	matchAmount,
}

// ParseIntentHeuristic reads text with keyword rules only. It is pure and
// deterministic and is the fallback whenever the model path is unavailable.
func ParseIntentHeuristic(text string) models.IntentResult {
	text = strings.TrimSpace(text)
	if text != "" {
		for _, rule := range heuristicRules {
			if result, ok := rule(text); ok {
				return result
			}
		}
	}
	return models.IntentResult{Intent: models.IntentUnknown, Confidence: HeuristicUnknownConfidence}
}

func matchUndo(text string) (models.IntentResult, bool) {
	if !undoKeywords.MatchString(text) {
		return models.IntentResult{}, false
	}
	return models.IntentResult{Intent: models.IntentUndoLast, Confidence: HeuristicMatchConfidence}, true
}

func matchSummary(text string) (models.IntentResult, bool) {
	if !summaryKeywords.MatchString(text) {
		return models.IntentResult{}, false
	}
	return models.IntentResult{Intent: models.IntentSummary, Confidence: HeuristicMatchConfidence}, true
}

func matchTotal(text string) (models.IntentResult, bool) {
	loc := totalKeywords.FindStringIndex(text)
	if loc == nil {
		return models.IntentResult{}, false
	}

	before := trailingPossessive.ReplaceAllString(text[:loc[0]], "")
	name := cleanCustomerName(before)
	if name == "" {
		name = firstNameToken(text[loc[1]:])
	}

	return models.IntentResult{
		Intent:       models.IntentTotal,
		CustomerName: name,
		Confidence:   HeuristicMatchConfidence,
	}, true
}

func matchAmount(text string) (models.IntentResult, bool) {
	loc := amountPattern.FindStringIndex(text)
	if loc == nil {
		return models.IntentResult{}, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(text[loc[0]:loc[1]], ",", ""))
	if err != nil {
		return models.IntentResult{}, false
	}

	var name string
	if marker := possessiveMarker.FindStringIndex(text); marker != nil {
		name = cleanCustomerName(text[:marker[0]])
	}
	if name == "" {
		name = cleanCustomerName(text[:loc[0]])
	}
	if name == "" {
		after := text[loc[1]:]
		if marker := possessiveMarker.FindStringIndex(after); marker != nil {
			after = after[:marker[0]]
		}
		name = cleanCustomerName(after)
	}

	return models.IntentResult{
		Intent:       models.IntentAddUdhaar,
		CustomerName: name,
		Amount:       &amount,
		Confidence:   HeuristicMatchConfidence,
	}, true
}

// cleanCustomerName keeps the words of s that can be part of a name.
func cleanCustomerName(s string) string {
	var kept []string
	for _, token := range strings.Fields(s) {
		token = strings.Trim(token, `.,!?;:'"()₹-`)
		if token == "" || strings.ContainsAny(token, "0123456789") {
			continue
		}
		if _, filler := fillerWords[strings.ToLower(token)]; filler {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

func firstNameToken(s string) string {
	for _, token := range strings.Fields(s) {
		if name := cleanCustomerName(token); name != "" {
			return name
		}
	}
	return ""
}
