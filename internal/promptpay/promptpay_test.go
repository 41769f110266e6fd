package promptpay

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), CRC16([]byte("123456789")))
	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
}

func TestPayload(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		amount   string
		contains []string
		absent   []string
	}{
		{
			name:     "phone with amount",
			target:   "081-234-5678",
			amount:   "208.75",
			contains: []string{"010212", "0016A000000677010111", "01130066812345678", "5802TH", "5303764", "5406208.75"},
		},
		{
			name:     "tax id without amount is static",
			target:   "1234567890123",
			amount:   "0",
			contains: []string{"010211", "02131234567890123"},
			absent:   []string{"530376454"},
		},
		{
			name:     "e-wallet",
			target:   "123456789012345",
			amount:   "1",
			contains: []string{"0315123456789012345", "54041.00"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := Payload(tc.target, decimal.RequireFromString(tc.amount))
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(payload, "000201"))
			for _, part := range tc.contains {
				assert.Contains(t, payload, part)
			}
			body, crc := payload[:len(payload)-4], payload[len(payload)-4:]
			assert.True(t, strings.HasSuffix(body, "6304"))
			assert.Equal(t, fmt.Sprintf("%04X", CRC16([]byte(body))), crc)
			for _, part := range tc.absent {
				assert.NotContains(t, body, part)
			}
		})
	}
}

func TestPayloadRejectsBadInput(t *testing.T) {
	_, err := Payload("12345", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = Payload("0812345678", decimal.NewFromInt(-1))
	assert.Error(t, err)
}

func TestEncoderMatchesPayload(t *testing.T) {
	amount := decimal.RequireFromString("267.50")
	want, err := Payload("0812345678", amount)
	require.NoError(t, err)

	got, err := Encoder{}.EncodePayment("0812345678", amount)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
