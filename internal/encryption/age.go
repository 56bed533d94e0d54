package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"chunkdb/internal/config"
)

// KeyPair manages the local age key files. The recipients file is plaintext;
// the identity file is encrypted with the user's passphrase using age's
// scrypt-based passphrase encryption.
type KeyPair struct {
	recipientsPath string
	identityPath   string
}

// NewKeyPair creates a KeyPair from configuration.
func NewKeyPair(cfg config.EncryptionConfig) *KeyPair {
	return &KeyPair{
		recipientsPath: cfg.RecipientsPath,
		identityPath:   cfg.IdentityPath,
	}
}

// Setup generates a new X25519 identity, writes its recipient to the
// recipients file, and stores the identity encrypted with the passphrase.
func (k *KeyPair) Setup(passphrase string) error {
	if k.recipientsPath == "" || k.identityPath == "" {
		return fmt.Errorf("recipients_path and identity_path must be configured")
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(k.recipientsPath), 0700); err != nil {
		return fmt.Errorf("creating recipients directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.identityPath), 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}

	if err := os.WriteFile(k.recipientsPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing recipients: %w", err)
	}

	f, err := os.OpenFile(k.identityPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	sealer, err := NewPassphraseSealer(passphrase)
	if err != nil {
		return err
	}
	if err := sealer.Encrypt(strings.NewReader(identity.String()+"\n"), f); err != nil {
		return fmt.Errorf("writing encrypted identity: %w", err)
	}
	return nil
}

// IsConfigured returns true if both key files exist.
func (k *KeyPair) IsConfigured() bool {
	if _, err := os.Stat(k.recipientsPath); err != nil {
		return false
	}
	if _, err := os.Stat(k.identityPath); err != nil {
		return false
	}
	return true
}

// Sealer returns a Sealer for the recipients in the recipients file.
func (k *KeyPair) Sealer() (*Sealer, error) {
	data, err := os.ReadFile(k.recipientsPath)
	if err != nil {
		return nil, fmt.Errorf("reading recipients: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing recipients: %w", err)
	}
	return NewSealer(recipients...)
}

// Unlock decrypts the identity file with the passphrase and returns an
// Opener holding the unlocked identities.
func (k *KeyPair) Unlock(passphrase string) (*Opener, error) {
	f, err := os.Open(k.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	defer f.Close()

	opener, err := NewPassphraseOpener(passphrase)
	if err != nil {
		return nil, err
	}

	var keyData bytes.Buffer
	if err := opener.Decrypt(f, &keyData); err != nil {
		return nil, fmt.Errorf("decrypting identity: %w", err)
	}

	identities, err := age.ParseIdentities(&keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	return &Opener{identities: identities}, nil
}

// ParseRecipients parses age public keys given on the command line.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// Sealer encrypts streams to a fixed set of age recipients.
type Sealer struct {
	recipients []age.Recipient
}

// NewSealer creates a Sealer for one or more recipients.
func NewSealer(recipients ...age.Recipient) (*Sealer, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	return &Sealer{recipients: recipients}, nil
}

// NewPassphraseSealer creates a Sealer that encrypts with a passphrase.
func NewPassphraseSealer(passphrase string) (*Sealer, error) {
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	return &Sealer{recipients: []age.Recipient{r}}, nil
}

// Seal returns a writer that encrypts into w. The caller must Close it to
// flush the final block.
func (s *Sealer) Seal(w io.Writer) (io.WriteCloser, error) {
	encWriter, err := age.Encrypt(w, s.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	return encWriter, nil
}

// Encrypt reads plaintext from r and writes age ciphertext to w.
func (s *Sealer) Encrypt(r io.Reader, w io.Writer) error {
	encWriter, err := s.Seal(w)
	if err != nil {
		return err
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Opener decrypts age streams with a set of identities.
type Opener struct {
	identities []age.Identity
}

// NewPassphraseOpener creates an Opener for passphrase-encrypted streams.
func NewPassphraseOpener(passphrase string) (*Opener, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	return &Opener{identities: []age.Identity{identity}}, nil
}

// Open returns a reader yielding the plaintext of r.
func (o *Opener) Open(r io.Reader) (io.Reader, error) {
	decReader, err := age.Decrypt(r, o.identities...)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	return decReader, nil
}

// Decrypt reads age ciphertext from r and writes plaintext to w.
func (o *Opener) Decrypt(r io.Reader, w io.Writer) error {
	decReader, err := o.Open(r)
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
