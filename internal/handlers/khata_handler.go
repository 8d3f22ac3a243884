package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/voicekhata/backend/internal/models"
	"github.com/voicekhata/backend/internal/services"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20 // voice notes travel base64 in the body

// Dialogue is the confirmation engine as seen by HTTP callers.
type Dialogue interface {
	SubmitMessage(ctx context.Context, msg services.InboundMessage) (*services.Reply, error)
	SubmitDecision(ctx context.Context, pendingID int64, decision models.Decision) (*services.Reply, error)
	ListEntries(ctx context.Context, shopPhone string, limit int) ([]models.EntryView, error)
}

type KhataHandler struct {
	service   Dialogue
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewKhataHandler(service Dialogue, log *zap.Logger) *KhataHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &KhataHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		log:       log.Named("khata_handler"),
	}
}

// MessageRequest is one inbound shopkeeper message. Audio is base64.
type MessageRequest struct {
	ShopPhone  string `json:"shop_phone" validate:"required,max=32"`
	MessageID  string `json:"message_id,omitempty" validate:"max=128"`
	Text       string `json:"text,omitempty" validate:"required_without=Audio,max=2000"`
	Audio      []byte `json:"audio,omitempty" swaggertype:"string" format:"base64"`
	Encoding   string `json:"encoding,omitempty" validate:"max=16"`
	SampleRate int32  `json:"sample_rate,omitempty" validate:"gte=0,lte=48000"`
}

type DecisionRequest struct {
	PendingID int64  `json:"pending_id" validate:"required,gt=0"`
	Decision  string `json:"decision" validate:"required"`
}

type EntriesResponse struct {
	Entries []models.EntryView `json:"entries"`
}

// SubmitMessage handles one text or voice message
// @Summary Submit Message
// @Description Read a shopkeeper message. Totals and summaries are answered at once; new udhaar and undo are staged for YES/NO confirmation.
// @Tags Khata
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MessageRequest true "Inbound message"
// @Success 200 {object} services.Reply
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.Reply
// @Router /messages [post]
func (h *KhataHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg := services.InboundMessage{
		ShopPhone: req.ShopPhone,
		MessageID: req.MessageID,
		Text:      req.Text,
	}
	if len(req.Audio) > 0 {
		msg.Audio = &services.AudioInput{
			Content:    req.Audio,
			Encoding:   req.Encoding,
			SampleRate: int(req.SampleRate),
		}
	}

	reply, err := h.service.SubmitMessage(r.Context(), msg)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, reply)
}

// SubmitDecision resolves a pending confirmation
// @Summary Submit Decision
// @Description Confirm (YES) or cancel (NO) a pending confirmation by id
// @Tags Khata
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DecisionRequest true "Decision"
// @Success 200 {object} services.Reply
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.Reply
// @Router /decisions [post]
func (h *KhataHandler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	decision, ok := services.DecisionFromString(req.Decision)
	if !ok {
		services.SendErrorResponse(w, "decision must be YES or NO", http.StatusBadRequest, nil)
		return
	}

	reply, err := h.service.SubmitDecision(r.Context(), req.PendingID, decision)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, reply)
}

// ListEntries returns the shop's newest ledger entries
// @Summary List Entries
// @Description Newest entries first, reversed entries included
// @Tags Khata
// @Produce json
// @Security BearerAuth
// @Param shop_phone query string true "Shop phone number"
// @Param limit query int false "Max entries (1-200, default 50)"
// @Success 200 {object} EntriesResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.Reply
// @Router /entries [get]
func (h *KhataHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	shopPhone := r.URL.Query().Get("shop_phone")
	if shopPhone == "" {
		services.SendErrorResponse(w, "shop_phone is required", http.StatusBadRequest, nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			services.SendErrorResponse(w, "limit must be an integer", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	entries, err := h.service.ListEntries(r.Context(), shopPhone, limit)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.EntryView{}
	}
	services.SendJSON(w, http.StatusOK, EntriesResponse{Entries: entries})
}

// Health reports liveness
// @Summary Health
// @Tags System
// @Produce json
// @Success 200 {object} object{status=string}
// @Router /health [get]
func Health(w http.ResponseWriter, r *http.Request) {
	services.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *KhataHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		h.log.Debug("decode failed", zap.Error(err))
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *KhataHandler) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrPersistence):
		h.log.Error("storage unavailable", zap.Error(err))
		services.SendJSON(w, http.StatusServiceUnavailable, services.PersistenceReply())
	default:
		h.log.Error("unexpected service error", zap.Error(err))
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
