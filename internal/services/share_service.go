package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/voicekhata/backend/internal/models"
	"go.uber.org/zap"
)

const (
	qrCacheTTL     = 24 * time.Hour
	qrSize         = 256
	statementLimit = 50
	qrCacheKeyFmt  = "khata:qr:%s"
)

// ShareService serves a customer's read-only statement behind the
// customer's link token, and a QR code of the link for the shop counter.
type ShareService struct {
	ledger  Ledger
	redis   *redis.Client
	baseURL string
	log     *zap.Logger
}

// NewShareService builds the service. A nil redis client disables QR caching.
func NewShareService(ledger Ledger, redis *redis.Client, baseURL string, log *zap.Logger) *ShareService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShareService{
		ledger:  ledger,
		redis:   redis,
		baseURL: baseURL,
		log:     log.Named("share"),
	}
}

func (s *ShareService) ShareURL(token string) string {
	return s.baseURL + "/" + token
}

func (s *ShareService) Statement(ctx context.Context, token string) (*models.CustomerStatement, error) {
	return s.ledger.CustomerStatement(ctx, token, statementLimit)
}

// QRCode returns a PNG encoding the customer's share link.
func (s *ShareService) QRCode(ctx context.Context, token string) ([]byte, error) {
	key := fmt.Sprintf(qrCacheKeyFmt, token)
	if s.redis != nil {
		data, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			return data, nil
		}
		if err != redis.Nil {
			s.log.Warn("qr cache read failed", zap.Error(err))
		}
	}

	if _, err := s.ledger.CustomerByToken(ctx, token); err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(s.ShareURL(token), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, png, qrCacheTTL).Err(); err != nil {
			s.log.Warn("qr cache write failed", zap.Error(err))
		}
	}
	return png, nil
}
