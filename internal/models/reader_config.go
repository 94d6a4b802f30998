package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var configValidate = validator.New()

// ReaderConfig is the versioned configuration pushed to devices in sync
// responses. Writes go through ValidateReaderConfig so a malformed blob can
// never reach a device; readers treat unknown fields as an error too, which
// catches typos in admin tooling.
type ReaderConfig struct {
	SchemaVersion   int    `json:"schemaVersion" validate:"required,min=1"`
	ScanMode        string `json:"scanMode" validate:"omitempty,oneof=entry exit tap"`
	SyncIntervalSec int    `json:"syncIntervalSec" validate:"omitempty,min=5,max=3600"`
	OfflineGrantTTL int    `json:"offlineGrantTtlSec" validate:"omitempty,min=0,max=86400"`
	LEDBrightness   int    `json:"ledBrightness" validate:"omitempty,min=0,max=100"`
	BeepOnScan      *bool  `json:"beepOnScan,omitempty"`
	DisplayMessage  string `json:"displayMessage" validate:"omitempty,max=64"`
}

// ValidateReaderConfig parses and validates a raw config blob, returning the
// canonical re-marshalled form.
func ValidateReaderConfig(raw []byte) ([]byte, error) {
	var cfg ReaderConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := configValidate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return json.Marshal(cfg)
}
