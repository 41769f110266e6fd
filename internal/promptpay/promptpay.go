// Package promptpay builds Thai PromptPay payloads in the EMVCo merchant-presented QR format.
package promptpay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	aid            = "A000000677010111"
	countryCode    = "TH"
	currencyTHB    = "764"
	staticQR       = "11"
	dynamicQR      = "12"
	tagFormat      = "00"
	tagPointOfInit = "01"
	tagMerchant    = "29"
	tagCurrency    = "53"
	tagAmount      = "54"
	tagCountry     = "58"
	tagCRC         = "63"
	subAID         = "00"
	subPhone       = "01"
	subTaxID       = "02"
	subEWallet     = "03"
)

var ErrInvalidTarget = errors.New("promptpay: target must be a phone number, tax id or e-wallet id")

// Encoder adapts Payload to the payment encoder used by the dining service.
type Encoder struct{}

func (Encoder) EncodePayment(merchantID string, amount decimal.Decimal) (string, error) {
	return Payload(merchantID, amount)
}

// Payload returns the QR text for paying amount to target. A zero amount yields a reusable
// static code that lets the payer type the amount.
func Payload(target string, amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("promptpay: negative amount %s", amount.String())
	}
	sub, account, err := normalizeTarget(target)
	if err != nil {
		return "", err
	}

	initMethod := staticQR
	if amount.IsPositive() {
		initMethod = dynamicQR
	}

	var b strings.Builder
	b.WriteString(field(tagFormat, "01"))
	b.WriteString(field(tagPointOfInit, initMethod))
	b.WriteString(field(tagMerchant, field(subAID, aid)+field(sub, account)))
	b.WriteString(field(tagCountry, countryCode))
	b.WriteString(field(tagCurrency, currencyTHB))
	if amount.IsPositive() {
		b.WriteString(field(tagAmount, amount.StringFixed(2)))
	}
	b.WriteString(tagCRC + "04")

	body := b.String()
	return body + fmt.Sprintf("%04X", CRC16([]byte(body))), nil
}

func normalizeTarget(target string) (string, string, error) {
	var digits strings.Builder
	for _, r := range target {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	id := digits.String()

	switch {
	case len(id) >= 9 && len(id) <= 10:
		// Mobile numbers are sent as 0066 followed by the number without its trunk prefix.
		phone := strings.TrimPrefix(id, "0")
		return subPhone, "0066" + strings.Repeat("0", 9-len(phone)) + phone, nil
	case len(id) == 13:
		return subTaxID, id, nil
	case len(id) == 15:
		return subEWallet, id, nil
	default:
		return "", "", ErrInvalidTarget
	}
}

func field(tag string, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// CRC16 is CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF, no reflection.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
