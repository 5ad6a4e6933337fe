package trust

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// VerifyManifest checks manifest's signature string against the embedded
// public key. The signature is expected in "ed25519:<hex>" form.
func (c *Chain) VerifyManifest(manifest []byte, signature string) error {
	if err := c.verifySignature(manifest, signature); err != nil {
		return fmt.Errorf("trust: verify manifest: %w", err)
	}
	return nil
}

// VerifyFile checks the file at path against a pinned hash of the form
// "blake3:<hex>" or "sha256:<hex>" (legacy). On mismatch the file is
// deleted — a corrupted or tampered binary must not remain on disk where a
// later, less careful load path might execute it.
func (c *Chain) VerifyFile(path string, pinned string) error {
	algo, wantHex, ok := strings.Cut(pinned, ":")
	if !ok {
		return fmt.Errorf("trust: verify file %q: %w", path, ErrInvalidSigFormat)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("trust: read file %q: %w", path, err)
	}

	got, err := hashFile(algo, data)
	if err != nil {
		return fmt.Errorf("trust: verify file %q: %w", path, err)
	}

	if hex.EncodeToString(got) != strings.ToLower(wantHex) {
		if rmErr := os.Remove(path); rmErr != nil {
			c.logger.Warn("trust: failed to delete compromised file", "path", path, "err", rmErr)
		}
		return fmt.Errorf("trust: verify file %q: %w", path, ErrHashMismatch)
	}
	return nil
}
