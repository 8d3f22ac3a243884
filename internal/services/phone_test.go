package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneNormalizer_Normalize(t *testing.T) {
	n := NewPhoneNormalizer("91")

	t.Run("all spellings of one number share a canonical form", func(t *testing.T) {
		inputs := []string{
			"+919876543210",
			"919876543210",
			"09876543210",
			"9876543210",
			"+91 98765-43210",
			"0091 9876543210",
		}
		for _, in := range inputs {
			p, err := n.Normalize(in)
			require.NoError(t, err, in)
			assert.Equal(t, "+919876543210", p.Canonical, in)
		}
	})

	t.Run("variants cover legacy spellings", func(t *testing.T) {
		p, err := n.Normalize("9876543210")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"+919876543210", "919876543210", "9876543210", "09876543210"}, p.Variants)
	})

	t.Run("foreign numbers keep their own code", func(t *testing.T) {
		p, err := n.Normalize("+14155550123")
		require.NoError(t, err)
		assert.Equal(t, "+14155550123", p.Canonical)
		assert.Equal(t, []string{"+14155550123", "14155550123"}, p.Variants)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		for _, in := range []string{"", "   ", "ramesh", "98765abc10", "12345", "+1234567890123456"} {
			_, err := n.Normalize(in)
			assert.True(t, errors.Is(err, ErrValidation), in)
		}
	})
}

func TestNewPhoneNormalizer_DefaultCode(t *testing.T) {
	n := NewPhoneNormalizer("+")
	canonical, err := n.Canonical("9876543210")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", canonical)
}
