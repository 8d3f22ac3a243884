package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/voicekhata/backend/internal/models"
	"github.com/voicekhata/backend/internal/services"
	"go.uber.org/zap"
)

// StatementSharer serves read-only customer statements behind link tokens.
type StatementSharer interface {
	Statement(ctx context.Context, token string) (*models.CustomerStatement, error)
	QRCode(ctx context.Context, token string) ([]byte, error)
}

type ShareHandler struct {
	service StatementSharer
	log     *zap.Logger
}

func NewShareHandler(service StatementSharer, log *zap.Logger) *ShareHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShareHandler{service: service, log: log.Named("share_handler")}
}

// GetStatement returns a customer's udhaar statement
// @Summary Customer Statement
// @Description Read-only statement for the customer behind a share link
// @Tags Share
// @Produce json
// @Param token path string true "Customer link token"
// @Success 200 {object} models.CustomerStatement
// @Failure 404 {object} services.ErrorResponse
// @Router /share/{token} [get]
func (h *ShareHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	statement, err := h.service.Statement(r.Context(), token)
	if err != nil {
		h.sendError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, statement)
}

// GetQRCode returns a PNG QR code of the share link
// @Summary Share QR Code
// @Tags Share
// @Produce png
// @Param token path string true "Customer link token"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /share/{token}/qr [get]
func (h *ShareHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	png, err := h.service.QRCode(r.Context(), token)
	if err != nil {
		h.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *ShareHandler) sendError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrNotFound) {
		services.SendErrorResponse(w, "Link not found", http.StatusNotFound, nil)
		return
	}
	h.log.Error("share lookup failed", zap.Error(err))
	services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
}
