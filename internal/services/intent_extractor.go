package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/voicekhata/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// aiCooldown is how long the model path stays off after a 429.
const aiCooldown = time.Minute

type ExtractorOptions struct {
	Threshold         float64
	Timeout           time.Duration
	RequestsPerMinute int
}

// IntentExtractor reads messages with the model when it is available and
// confident, and with the keyword heuristic otherwise. Extract never fails.
type IntentExtractor struct {
	provider  IntentProvider
	limiter   *rate.Limiter
	threshold float64
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time

	mu            sync.Mutex
	cooldownUntil time.Time
}

// NewIntentExtractor builds an extractor. A nil provider means heuristic only.
func NewIntentExtractor(provider IntentProvider, opts ExtractorOptions, log *zap.Logger) *IntentExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	// A model answer must score at least the heuristic band to be accepted,
	// so accepted model answers never rank below keyword matches.
	threshold := opts.Threshold
	if threshold < HeuristicMatchConfidence {
		threshold = HeuristicMatchConfidence
	}
	e := &IntentExtractor{
		provider:  provider,
		threshold: threshold,
		timeout:   opts.Timeout,
		log:       log.Named("intent"),
		now:       time.Now,
	}
	if opts.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.RequestsPerMinute)
	}
	return e
}

func (e *IntentExtractor) Extract(ctx context.Context, text string) models.IntentResult {
	text = strings.TrimSpace(text)
	if text == "" || e.provider == nil {
		return ParseIntentHeuristic(text)
	}

	if !e.modelAvailable() {
		e.log.Debug("model quota exhausted, using heuristic")
		return ParseIntentHeuristic(text)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.provider.RawIntent(callCtx, text)
	if err != nil {
		if errors.Is(err, ErrAIRateLimited) {
			e.startCooldown()
		}
		e.log.Warn("intent model failed, using heuristic", zap.Error(err))
		return ParseIntentHeuristic(text)
	}

	result, err := decodeAIIntent(raw)
	if err != nil {
		e.log.Warn("intent model reply rejected, using heuristic", zap.Error(err))
		return ParseIntentHeuristic(text)
	}

	if result.Intent == models.IntentUnknown || result.Confidence < e.threshold {
		e.log.Debug("intent model not confident, using heuristic",
			zap.String("intent", string(result.Intent)),
			zap.Float64("confidence", result.Confidence),
		)
		return ParseIntentHeuristic(text)
	}

	return result
}

func (e *IntentExtractor) modelAvailable() bool {
	e.mu.Lock()
	cooling := e.now().Before(e.cooldownUntil)
	e.mu.Unlock()
	if cooling {
		return false
	}
	return e.limiter == nil || e.limiter.Allow()
}

func (e *IntentExtractor) startCooldown() {
	e.mu.Lock()
	e.cooldownUntil = e.now().Add(aiCooldown)
	e.mu.Unlock()
}
