package crypto

import (
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/zeebo/blake3"
)

func ParseRecipient(publicKey string) (age.Recipient, error) {
	recipient, err := age.ParseX25519Recipient(strings.TrimSpace(publicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age public key: %w", err)
	}
	return recipient, nil
}

func ParseIdentityFile(path string) (age.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return identity, nil
}

// Encrypt returns a writer that age-encrypts to recipient. Close must be
// called to flush the final chunk.
func Encrypt(w io.Writer, recipient age.Recipient) (io.WriteCloser, error) {
	ew, err := age.Encrypt(w, recipient)
	if err != nil {
		return nil, fmt.Errorf("age encryption failed: %w", err)
	}
	return ew, nil
}

// Digest hashes and counts the bytes written to it.
type Digest struct {
	hasher *blake3.Hasher
	size   int64
}

func NewDigest() *Digest {
	return &Digest{hasher: blake3.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.hasher.Write(p)
	d.size += int64(n)
	return n, err
}

func (d *Digest) Size() int64 {
	return d.size
}

func (d *Digest) Sum() string {
	return fmt.Sprintf("%x", d.hasher.Sum(nil))
}

// BLAKE3File computes the BLAKE3 hash of a file
func BLAKE3File(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d := NewDigest()
	if _, err := io.Copy(d, f); err != nil {
		return "", err
	}

	return d.Sum(), nil
}
