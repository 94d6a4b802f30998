package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DeviceSignature computes the hex HMAC-SHA256 a device must send with a
// sync request: HMAC(secret, timestamp || body).
func DeviceSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDeviceSignature compares a supplied hex signature in constant time.
func VerifyDeviceSignature(secret, timestamp string, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
