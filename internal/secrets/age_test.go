package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tcprefs-go/internal/config"
)

const testPassphrase = "correct horse battery"

func newTestCipher(t *testing.T) *AgeCipher {
	t.Helper()

	dir := t.TempDir()
	c := NewAgeCipher(config.SecretsConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "tcprefs.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "tcprefs.key"),
	}, func() (string, error) { return testPassphrase, nil })
	if err := c.Setup(testPassphrase); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return c
}

func TestAgeCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{"hunter2", "", "päss wörd with spaces"} {
		encrypted, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plaintext, err)
		}
		if encrypted == plaintext && plaintext != "" {
			t.Errorf("Encrypt(%q) returned the plaintext", plaintext)
		}

		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestAgeCipher_EncryptionsDiffer(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := c.Encrypt("same secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext should not be identical")
	}
}

func TestAgeCipher_Setup(t *testing.T) {
	t.Run("private key is owner-only", func(t *testing.T) {
		c := newTestCipher(t)

		info, err := os.Stat(c.privateKeyPath)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("private key permissions = %o, want 0600", perm)
		}
	})

	t.Run("private key file is passphrase-wrapped", func(t *testing.T) {
		c := newTestCipher(t)

		data, err := os.ReadFile(c.privateKeyPath)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if strings.Contains(string(data), "AGE-SECRET-KEY-1") {
			t.Error("private key file contains a plaintext identity")
		}
		if !strings.HasPrefix(string(data), "age-encryption.org/") {
			t.Error("private key file is not an age ciphertext")
		}
	})

	t.Run("IsConfigured tracks key file presence", func(t *testing.T) {
		dir := t.TempDir()
		c := NewAgeCipher(config.SecretsConfig{
			PublicKeyPath:  filepath.Join(dir, "pub"),
			PrivateKeyPath: filepath.Join(dir, "key"),
		}, nil)

		if c.IsConfigured() {
			t.Error("IsConfigured() = true before Setup()")
		}
		if err := c.Setup(testPassphrase); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if !c.IsConfigured() {
			t.Error("IsConfigured() = false after Setup()")
		}
	})
}

func TestAgeCipher_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	cfg := config.SecretsConfig{
		PublicKeyPath:  filepath.Join(dir, "pub"),
		PrivateKeyPath: filepath.Join(dir, "key"),
	}

	c := NewAgeCipher(cfg, func() (string, error) { return "wrong", nil })
	if err := c.Setup(testPassphrase); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	encrypted, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := c.Decrypt(encrypted); err == nil {
		t.Error("Decrypt() with the wrong passphrase should fail")
	}
}

func TestAgeCipher_PassphraseReadOnce(t *testing.T) {
	dir := t.TempDir()
	cfg := config.SecretsConfig{
		PublicKeyPath:  filepath.Join(dir, "pub"),
		PrivateKeyPath: filepath.Join(dir, "key"),
	}

	prompts := 0
	c := NewAgeCipher(cfg, func() (string, error) {
		prompts++
		return testPassphrase, nil
	})
	if err := c.Setup(testPassphrase); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		encrypted, err := c.Encrypt("secret")
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if _, err := c.Decrypt(encrypted); err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
	}
	if prompts != 1 {
		t.Errorf("passphrase read %d times, want 1", prompts)
	}
}

func TestNopCipher(t *testing.T) {
	c := NewNopCipher()

	encrypted, err := c.Encrypt("plain")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != "plain" {
		t.Errorf("round trip = %q, want plain", decrypted)
	}
}
