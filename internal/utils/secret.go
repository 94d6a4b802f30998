package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateDeviceSecret returns a random hex secret for a newly provisioned
// reader. 32 bytes of entropy; shown to the admin exactly once.
func GenerateDeviceSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
