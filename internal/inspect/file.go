package inspect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pgbackup/internal/compress"

	"filippo.io/age"
)

// File scans a local dump, undoing age encryption (when identity is set) and
// compression detected from the file name.
func File(path string, identity age.Identity) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".age") {
		if identity == nil {
			return Stats{}, fmt.Errorf("%s is encrypted, an age identity is required", filepath.Base(path))
		}
		dr, err := age.Decrypt(f, identity)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to decrypt dump: %w", err)
		}
		r = dr
	}

	cr, err := compress.NewReader(compress.Detect(path), r)
	if err != nil {
		return Stats{}, err
	}
	defer cr.Close()

	s := New()
	if _, err := io.Copy(s, cr); err != nil {
		return Stats{}, fmt.Errorf("failed to read dump: %w", err)
	}
	return s.Stats(), nil
}
