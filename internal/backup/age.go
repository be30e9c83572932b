package backup

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// ErrWrongPassphrase is returned when a snapshot cannot be decrypted with the given passphrase.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// AgeEncryptor encrypts snapshots with age's scrypt passphrase recipient.
type AgeEncryptor struct {
	passphrase string
	workFactor int // scrypt log2(N); 0 keeps age's default
}

var _ Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates an encryptor bound to passphrase.
func NewAgeEncryptor(passphrase string) (*AgeEncryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	return &AgeEncryptor{passphrase: passphrase}, nil
}

// WithWorkFactor overrides the scrypt cost used for new ciphertexts.
func (e *AgeEncryptor) WithWorkFactor(logN int) *AgeEncryptor {
	e.workFactor = logN
	return e
}

// Encrypt reads plaintext from r and writes age ciphertext to w.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := age.NewScryptRecipient(e.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if e.workFactor > 0 {
		recipient.SetWorkFactor(e.workFactor)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Decrypt reads age ciphertext from r and writes plaintext to w.
func (e *AgeEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	identity, err := age.NewScryptIdentity(e.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return ErrWrongPassphrase
		}
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
