// Package secrets keeps provider credentials encrypted at rest with age.
// Values are stored as ENC[age:<base64>] and revealed when a model is built.
package secrets

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"github.com/dohr-michael/quill/internal/config"
)

const (
	encPrefix = "ENC[age:"
	encSuffix = "]"
)

// KeyPath returns the default identity file: $QUILL_PATH/.age-key.
func KeyPath() string {
	return config.AgeKeyPath()
}

// IsEncrypted reports whether s is an ENC[age:...] blob.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, encPrefix) && strings.HasSuffix(s, encSuffix)
}

// Keyring owns one age identity file and loads it on first use.
type Keyring struct {
	path string

	once     sync.Once
	identity *age.X25519Identity
	err      error
}

// NewKeyring returns a keyring backed by the identity file at path.
func NewKeyring(path string) *Keyring {
	return &Keyring{path: path}
}

var (
	defaultOnce sync.Once
	defaultRing *Keyring
)

// Default returns the process-wide keyring at KeyPath.
func Default() *Keyring {
	defaultOnce.Do(func() { defaultRing = NewKeyring(KeyPath()) })
	return defaultRing
}

// Path returns the identity file location.
func (k *Keyring) Path() string { return k.path }

// EnsureIdentity creates an X25519 identity at the keyring path with 0600
// permissions unless one already exists.
func (k *Keyring) EnsureIdentity() error {
	if _, err := os.Stat(k.path); err == nil {
		return nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generate age identity: %w", err)
	}
	content := fmt.Sprintf("# created by quill\n# public key: %s\n%s\n",
		identity.Recipient().String(), identity.String())

	if err := os.MkdirAll(filepath.Dir(k.path), 0o755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(k.path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write age key: %w", err)
	}
	return nil
}

func (k *Keyring) load() (*age.X25519Identity, error) {
	k.once.Do(func() {
		f, err := os.Open(k.path)
		if err != nil {
			k.err = fmt.Errorf("open age key: %w", err)
			return
		}
		defer f.Close()

		ids, err := age.ParseIdentities(f)
		if err != nil {
			k.err = fmt.Errorf("parse age key %s: %w", k.path, err)
			return
		}
		for _, id := range ids {
			if x, ok := id.(*age.X25519Identity); ok {
				k.identity = x
				return
			}
		}
		k.err = fmt.Errorf("no X25519 identity in %s", k.path)
	})
	return k.identity, k.err
}

// Seal encrypts plaintext to the keyring's recipient.
func (k *Keyring) Seal(plaintext string) (string, error) {
	id, err := k.load()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, id.Recipient())
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	return encPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + encSuffix, nil
}

// Reveal returns value unchanged unless it is an ENC[age:...] blob, in which
// case it is decrypted with the keyring identity.
func (k *Keyring) Reveal(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	id, err := k.load()
	if err != nil {
		return "", fmt.Errorf("encrypted secret: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(value[len(encPrefix) : len(value)-len(encSuffix)])
	if err != nil {
		return "", fmt.Errorf("encrypted secret: base64: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), id)
	if err != nil {
		return "", fmt.Errorf("age decrypt with %s: %w", k.path, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	return string(plain), nil
}
