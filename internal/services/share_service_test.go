package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicekhata/backend/internal/models"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestShareService_QRCode(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	shop := testShopNumber(t)
	_, err := ledger.AddUdhaar(ctx, shop, "Ramesh", *amountPtr(200), models.EntrySource{})
	require.NoError(t, err)

	t.Run("without cache", func(t *testing.T) {
		share := NewShareService(ledger, nil, "https://khata.example/s", nil)
		assert.Equal(t, "https://khata.example/s/tok-1", share.ShareURL("tok-1"))

		png, err := share.QRCode(ctx, "tok-1")
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, pngMagic))
	})

	t.Run("unknown token", func(t *testing.T) {
		share := NewShareService(ledger, nil, "https://khata.example/s", nil)
		_, err := share.QRCode(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cache hit skips encoding", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		share := NewShareService(ledger, client, "https://khata.example/s", nil)

		mock.ExpectGet("khata:qr:tok-1").SetVal("cached")

		png, err := share.QRCode(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("cached"), png)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache miss stores the image", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		share := NewShareService(ledger, client, "https://khata.example/s", nil)

		expected, err := qrcode.Encode("https://khata.example/s/tok-1", qrcode.Medium, 256)
		require.NoError(t, err)

		mock.ExpectGet("khata:qr:tok-1").RedisNil()
		mock.ExpectSet("khata:qr:tok-1", expected, 24*time.Hour).SetVal("OK")

		png, err := share.QRCode(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, expected, png)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
