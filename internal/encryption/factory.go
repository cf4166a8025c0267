package encryption

import (
	"fmt"

	"sentinel-go/internal/config"
	"sentinel-go/internal/sentinel"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" (and the empty default) returns nil: quarantine copies are
// stored as-is and restores never need a passphrase.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (sentinel.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
