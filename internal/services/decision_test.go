package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voicekhata/backend/internal/models"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		text     string
		ok       bool
		decision models.Decision
		id       int64
	}{
		{"YES", true, models.DecisionYes, 0},
		{"  haan ", true, models.DecisionYes, 0},
		{"ok!", true, models.DecisionYes, 0},
		{"✅", true, models.DecisionYes, 0},
		{"no", true, models.DecisionNo, 0},
		{"Nahi", true, models.DecisionNo, 0},
		{"YES 12", true, models.DecisionYes, 12},
		{"no #7", true, models.DecisionNo, 7},
		{"yes please", false, "", 0},
		{"Ramesh ko 200 udhaar", false, "", 0},
		{"yes 0", false, "", 0},
		{"", false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			parsed, ok := ParseDecision(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.decision, parsed.Decision)
			assert.Equal(t, tt.id, parsed.PendingID)
		})
	}
}

func TestDecisionFromString(t *testing.T) {
	d, ok := DecisionFromString("yes")
	assert.True(t, ok)
	assert.Equal(t, models.DecisionYes, d)

	_, ok = DecisionFromString("YES 3")
	assert.False(t, ok)

	_, ok = DecisionFromString("maybe")
	assert.False(t, ok)
}
