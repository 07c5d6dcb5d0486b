package secrets

import (
	"fmt"

	"tcprefs-go/internal/config"
	"tcprefs-go/internal/tc"
)

// NewCipherFromConfig creates a Cipher based on the configured secrets type.
// The passphrase function is only consulted by the age cipher, and only when
// a private-key decryption is actually needed.
func NewCipherFromConfig(cfg config.SecretsConfig, passphrase PassphraseFunc) (tc.Cipher, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeCipher(cfg, passphrase), nil
	case "none":
		return NewNopCipher(), nil
	default:
		return nil, fmt.Errorf("unknown secrets type: %q", cfg.Type)
	}
}

// NopCipher is a Cipher that stores secrets as-is. Use in tests only.
type NopCipher struct{}

func NewNopCipher() *NopCipher { return &NopCipher{} }

func (*NopCipher) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (*NopCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

var _ tc.Cipher = (*NopCipher)(nil)
