package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature validates the x-signature header sent with webhook
// notifications. The header format is "ts=<timestamp>,v1=<hash>" and the
// signed message is "<dataID>.<timestamp>".
func VerifySignature(dataID, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	var timestamp, hash string
	for _, part := range strings.Split(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "ts":
			timestamp = value
		case "v1":
			hash = value
		}
	}
	if timestamp == "" || hash == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(dataID + "." + timestamp))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(hash), []byte(expected))
}
