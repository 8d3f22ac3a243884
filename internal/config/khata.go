package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/voicekhata/backend/internal/models"
)

// Pending confirmation policies applied when a shop already has an
// outstanding confirmation and a new mutating message arrives.
const (
	PendingPolicyReplace = "replace"
	PendingPolicyReject  = "reject"
)

// DefaultMaxAmount caps a single udhaar entry at one crore rupees.
var DefaultMaxAmount = decimal.NewFromInt(10_000_000)

type KhataConfig struct {
	// ConfidenceThreshold gates staging of mutations. Model answers are
	// additionally held to the keyword parser's 0.7 band.
	ConfidenceThreshold float64
	PendingTTL          time.Duration
	PendingRetention    time.Duration
	PendingPolicy       string
	DedupeTTL           time.Duration
	DefaultCountryCode  string
	SummaryTopN         int
	ShareBaseURL        string
	MaxAmount           decimal.Decimal
}

type AIConfig struct {
	Enabled           bool
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
}

type SpeechConfig struct {
	Enabled                  bool
	LanguageCode             string
	AlternativeLanguageCodes []string
	Timeout                  time.Duration
}

func LoadKhataConfig() *KhataConfig {
	viper.SetDefault("khata.confidence_threshold", 0.7)
	viper.SetDefault("khata.pending_ttl", 10*time.Minute)
	viper.SetDefault("khata.pending_retention", 24*time.Hour)
	viper.SetDefault("khata.pending_policy", PendingPolicyReplace)
	viper.SetDefault("khata.dedupe_ttl", 24*time.Hour)
	viper.SetDefault("khata.default_country_code", "91")
	viper.SetDefault("khata.summary_top_n", 10)
	viper.SetDefault("khata.share_base_url", "http://localhost:8080/api/v1/share")
	viper.SetDefault("khata.max_amount", DefaultMaxAmount.String())

	policy := strings.ToLower(strings.TrimSpace(viper.GetString("khata.pending_policy")))
	if policy != PendingPolicyReject {
		policy = PendingPolicyReplace
	}

	threshold := viper.GetFloat64("khata.confidence_threshold")
	if threshold < 0 || threshold > 1 {
		threshold = 0.7
	}

	maxAmount, err := decimal.NewFromString(viper.GetString("khata.max_amount"))
	if err != nil || !maxAmount.IsPositive() || maxAmount.GreaterThan(models.MaxStorableAmount) {
		maxAmount = DefaultMaxAmount
	}

	return &KhataConfig{
		ConfidenceThreshold: threshold,
		PendingTTL:          viper.GetDuration("khata.pending_ttl"),
		PendingRetention:    viper.GetDuration("khata.pending_retention"),
		PendingPolicy:       policy,
		DedupeTTL:           viper.GetDuration("khata.dedupe_ttl"),
		DefaultCountryCode:  viper.GetString("khata.default_country_code"),
		SummaryTopN:         viper.GetInt("khata.summary_top_n"),
		ShareBaseURL:        strings.TrimRight(viper.GetString("khata.share_base_url"), "/"),
		MaxAmount:           maxAmount.Truncate(models.AmountScale),
	}
}

// LoadAIConfig reads the intent model settings. The default endpoint is
// Gemini's OpenAI-compatible API.
func LoadAIConfig() *AIConfig {
	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	viper.SetDefault("ai.model", "gemini-2.0-flash")
	viper.SetDefault("ai.timeout", 8*time.Second)
	viper.SetDefault("ai.requests_per_minute", 60)

	apiKey := viper.GetString("ai.api_key")
	return &AIConfig{
		Enabled:           viper.GetBool("ai.enabled") && apiKey != "",
		APIKey:            apiKey,
		BaseURL:           strings.TrimRight(viper.GetString("ai.base_url"), "/"),
		Model:             viper.GetString("ai.model"),
		Timeout:           viper.GetDuration("ai.timeout"),
		RequestsPerMinute: viper.GetInt("ai.requests_per_minute"),
	}
}

func LoadSpeechConfig() *SpeechConfig {
	viper.SetDefault("speech.enabled", true)
	viper.SetDefault("speech.language_code", "hi-IN")
	viper.SetDefault("speech.alternative_language_codes", []string{"en-IN"})
	viper.SetDefault("speech.timeout", 30*time.Second)

	return &SpeechConfig{
		Enabled:                  viper.GetBool("speech.enabled"),
		LanguageCode:             viper.GetString("speech.language_code"),
		AlternativeLanguageCodes: viper.GetStringSlice("speech.alternative_language_codes"),
		Timeout:                  viper.GetDuration("speech.timeout"),
	}
}
