package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// computeHMAC вычисляет HMAC-SHA256 в hex
func computeHMAC(message []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}

// verifySignature проверяет подпись тела запроса. Допускается префикс "sha256="
func verifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(computeHMAC(body, secret))

	return hmac.Equal(expected, provided)
}
