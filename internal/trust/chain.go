// Package trust implements the Trust Chain (spec.md §4.8): verification of
// signed manifests, hash-pinned binaries, and signed control-plane
// envelopes against an embedded Ed25519 public key.
package trust

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/hdevalence/ed25519consensus"
	"github.com/zeebo/blake3"

	"github.com/nlbuilder/agentd/internal/config"
)

var (
	ErrMissingPublicKey    = errors.New("trust: no public key source configured")
	ErrInvalidKeyFormat    = errors.New("trust: public key has the wrong length")
	ErrInvalidSigFormat    = errors.New("trust: signature string is malformed")
	ErrSignatureInvalid    = errors.New("trust: signature verification failed")
	ErrUnsupportedHashAlgo = errors.New("trust: unrecognized hash algorithm prefix")
	ErrHashMismatch        = errors.New("trust: file hash does not match the pinned value")
	ErrEnvelopeExpired     = errors.New("trust: envelope timestamp is outside the valid window")
	ErrNonceReused         = errors.New("trust: envelope nonce has already been seen")
)

// devPlaceholderKey is used only when AllowDevPlaceholder is set and no real
// key source is configured. Every signature check against it will fail
// unless the corresponding all-zero private key was used to sign, which
// happens only in local development fixtures.
var devPlaceholderKey = make([]byte, ed25519.PublicKeySize)

const defaultEnvelopeWindowSec = 30
const defaultNonceCacheSize = 10000

// Chain verifies signed artifacts against the embedded public key.
type Chain struct {
	publicKey   ed25519.PublicKey
	nonces      *lru.Cache[uint64, struct{}]
	windowSec   int64
	logger      *slog.Logger
}

// NewChain loads the public key per cfg and builds the bounded nonce cache
// used for envelope replay prevention.
func NewChain(cfg config.TrustConfig, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, err := loadPublicKey(cfg, logger)
	if err != nil {
		return nil, err
	}

	size := cfg.NonceCacheSize
	if size <= 0 {
		size = defaultNonceCacheSize
	}
	nonces, err := lru.New[uint64, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("trust: build nonce cache: %w", err)
	}

	window := int64(cfg.EnvelopeWindowSec)
	if window <= 0 {
		window = defaultEnvelopeWindowSec
	}

	return &Chain{publicKey: key, nonces: nonces, windowSec: window, logger: logger}, nil
}

// loadPublicKey resolves the embedded key in priority order: an environment
// variable, a raw binary file, then a hex-encoded file. AllowDevPlaceholder
// falls back to a placeholder key that cannot verify any real signature.
func loadPublicKey(cfg config.TrustConfig, logger *slog.Logger) (ed25519.PublicKey, error) {
	if cfg.PublicKeyEnv != "" {
		if hexKey := os.Getenv(cfg.PublicKeyEnv); hexKey != "" {
			return decodeHexKey(hexKey)
		}
	}

	if cfg.PublicKeyFile != "" {
		raw, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("trust: read public key file: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, ErrInvalidKeyFormat
		}
		return ed25519.PublicKey(raw), nil
	}

	if cfg.PublicKeyHexFile != "" {
		raw, err := os.ReadFile(cfg.PublicKeyHexFile)
		if err != nil {
			return nil, fmt.Errorf("trust: read public key hex file: %w", err)
		}
		return decodeHexKey(strings.TrimSpace(string(raw)))
	}

	if cfg.AllowDevPlaceholder {
		logger.Warn("trust: no public key configured, using development placeholder (signatures will never verify)")
		return ed25519.PublicKey(devPlaceholderKey), nil
	}

	return nil, ErrMissingPublicKey
}

func decodeHexKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeyFormat
	}
	return ed25519.PublicKey(raw), nil
}

// verifySignature checks an "ed25519:<hex>" signature string against message
// using the consensus-strict verifier (rejects non-canonical signatures).
func (c *Chain) verifySignature(message []byte, sigStr string) error {
	const prefix = "ed25519:"
	if !strings.HasPrefix(sigStr, prefix) {
		return ErrInvalidSigFormat
	}
	sig, err := hex.DecodeString(sigStr[len(prefix):])
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSigFormat
	}
	if !ed25519consensus.Verify(c.publicKey, message, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

// hashFile computes the digest named by algo ("blake3" or "sha256", the
// latter kept for legacy manifests per the original implementation).
func hashFile(algo string, data []byte) ([]byte, error) {
	switch algo {
	case "blake3":
		h := blake3.New()
		h.Write(data)
		return h.Sum(nil), nil
	case "sha256":
		sum := sha256.Sum256(data)
		return sum[:], nil
	default:
		return nil, ErrUnsupportedHashAlgo
	}
}
