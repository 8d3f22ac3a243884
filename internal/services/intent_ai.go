package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"github.com/voicekhata/backend/internal/config"
	"github.com/voicekhata/backend/internal/models"
)

// ErrAIRateLimited is returned when the model endpoint answers 429.
var ErrAIRateLimited = fmt.Errorf("%w: intent model rate limited", ErrExternalService)

// IntentProvider asks a language model to read a message. The reply is the
// model's raw, untrusted JSON text.
type IntentProvider interface {
	RawIntent(ctx context.Context, text string) ([]byte, error)
}

const intentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["intent", "customer_name", "amount", "confidence"],
  "properties": {
    "intent": {"enum": ["add_udhaar", "undo_last", "total", "summary", "unknown"]},
    "customer_name": {"type": "string", "maxLength": 80},
    "amount": {"type": ["number", "null"], "exclusiveMinimum": 0, "maximum": 999999999999.99},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "allOf": [
    {
      "if": {"properties": {"intent": {"const": "add_udhaar"}}},
      "then": {"properties": {"amount": {"type": "number"}, "customer_name": {"minLength": 1}}}
    },
    {
      "if": {"properties": {"intent": {"const": "total"}}},
      "then": {"properties": {"customer_name": {"minLength": 1}}}
    }
  ]
}`

var intentSchema = jsonschema.MustCompileString("intent.schema.json", intentSchemaJSON)

var aiValidator = validator.New()

type aiIntentReply struct {
	Intent       string       `json:"intent" validate:"required,oneof=add_udhaar undo_last total summary unknown"`
	CustomerName string       `json:"customer_name" validate:"max=80"`
	Amount       *json.Number `json:"amount"`
	Confidence   *float64     `json:"confidence" validate:"required,gte=0,lte=1"`
}

// decodeAIIntent turns a raw model reply into an IntentResult, or fails if
// the reply does not match the intent schema exactly.
func decodeAIIntent(raw []byte) (models.IntentResult, error) {
	body := extractJSONObject(raw)
	if body == nil {
		return models.IntentResult{}, fmt.Errorf("%w: no JSON object in model reply", ErrExternalService)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.IntentResult{}, fmt.Errorf("%w: decode model reply: %v", ErrExternalService, err)
	}
	if err := intentSchema.Validate(doc); err != nil {
		return models.IntentResult{}, fmt.Errorf("%w: model reply violates schema: %v", ErrExternalService, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var reply aiIntentReply
	if err := dec.Decode(&reply); err != nil {
		return models.IntentResult{}, fmt.Errorf("%w: decode model reply: %v", ErrExternalService, err)
	}
	if err := aiValidator.Struct(&reply); err != nil {
		return models.IntentResult{}, fmt.Errorf("%w: model reply invalid: %v", ErrExternalService, err)
	}

	result := models.IntentResult{
		Intent:       models.Intent(reply.Intent),
		CustomerName: strings.TrimSpace(reply.CustomerName),
		Confidence:   *reply.Confidence,
	}
	if reply.Amount != nil && result.Intent == models.IntentAddUdhaar {
		amount, err := decimal.NewFromString(reply.Amount.String())
		if err != nil {
			return models.IntentResult{}, fmt.Errorf("%w: bad amount %q", ErrExternalService, reply.Amount.String())
		}
		result.Amount = &amount
	}
	if result.Intent != models.IntentAddUdhaar && result.Intent != models.IntentTotal {
		result.CustomerName = ""
	}
	return result, nil
}

// extractJSONObject trims any prose or code fences around the first JSON object.
func extractJSONObject(raw []byte) []byte {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start == -1 || end <= start {
		return nil
	}
	return raw[start : end+1]
}

const intentSystemPrompt = `You are an assistant for an Indian kirana shop's udhaar (store credit) notebook.
Read the shopkeeper's message (Hindi, Hinglish or English) and reply with STRICT JSON only.

Valid intents:
- add_udhaar: record credit given to a customer. customer_name and amount are required.
- undo_last: undo the most recent entry. customer_name is "" and amount is null.
- total: how much one customer owes. customer_name is required, amount is null.
- summary: everyone's outstanding udhaar. customer_name is "" and amount is null.
- unknown: anything else.

confidence is a number from 0 to 1.
Return exactly this shape and nothing else:
{"intent": "...", "customer_name": "string", "amount": number|null, "confidence": 0-1}`

// OpenAIIntentProvider reads messages through an OpenAI-compatible chat
// completions endpoint in JSON mode.
type OpenAIIntentProvider struct {
	cfg    *config.AIConfig
	client *http.Client
}

func NewOpenAIIntentProvider(cfg *config.AIConfig) *OpenAIIntentProvider {
	return &OpenAIIntentProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAIIntentProvider) RawIntent(ctx context.Context, text string) ([]byte, error) {
	data, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrExternalService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExternalService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrAIRateLimited
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExternalService, err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("%w: decode response (HTTP %d): %v", ErrExternalService, resp.StatusCode, err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("%w: API error (%s): %s", ErrExternalService, chat.Error.Type, chat.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrExternalService, resp.StatusCode)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: intent model returned no choices", ErrExternalService)
	}

	return []byte(chat.Choices[0].Message.Content), nil
}
