package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadKhataConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()

		cfg := LoadKhataConfig()
		assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
		assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
		assert.Equal(t, PendingPolicyReplace, cfg.PendingPolicy)
		assert.Equal(t, "91", cfg.DefaultCountryCode)
		assert.Equal(t, 10, cfg.SummaryTopN)
		assert.True(t, cfg.MaxAmount.Equal(DefaultMaxAmount))
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		viper.Set("khata.confidence_threshold", 0.85)
		viper.Set("khata.pending_policy", "REJECT")
		viper.Set("khata.pending_ttl", "2m")
		viper.Set("khata.max_amount", "50000")

		cfg := LoadKhataConfig()
		assert.Equal(t, 0.85, cfg.ConfidenceThreshold)
		assert.Equal(t, PendingPolicyReject, cfg.PendingPolicy)
		assert.Equal(t, 2*time.Minute, cfg.PendingTTL)
		assert.Equal(t, "50000", cfg.MaxAmount.String())
	})

	t.Run("max amount beyond the column falls back", func(t *testing.T) {
		viper.Reset()
		viper.Set("khata.max_amount", "100000000000000")

		cfg := LoadKhataConfig()
		assert.True(t, cfg.MaxAmount.Equal(DefaultMaxAmount))
	})

	t.Run("out of range threshold falls back", func(t *testing.T) {
		viper.Reset()
		viper.Set("khata.confidence_threshold", 1.5)
		viper.Set("khata.pending_policy", "queue")

		cfg := LoadKhataConfig()
		assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
		assert.Equal(t, PendingPolicyReplace, cfg.PendingPolicy)
	})
}

func TestLoadAIConfig(t *testing.T) {
	viper.Reset()
	cfg := LoadAIConfig()
	assert.False(t, cfg.Enabled, "no api key means heuristic only")
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)

	viper.Set("ai.api_key", "secret")
	cfg = LoadAIConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8*time.Second, cfg.Timeout)
}
