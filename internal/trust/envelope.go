package trust

import (
	"fmt"
)

// Envelope is a signed control-plane message: a remote command or config
// push that must be fresh (bounded clock skew) and not a captured replay.
type Envelope struct {
	Timestamp int64
	Nonce     uint64
	Payload   []byte
	Signature string // "ed25519:<hex>"
}

// VerifyEnvelope checks the timestamp window, nonce uniqueness, and
// signature, in that order — matching the original's check sequence, where
// a stale envelope is rejected before a signature is even computed.
func (c *Chain) VerifyEnvelope(env Envelope, now int64) error {
	delta := now - env.Timestamp
	if delta < 0 {
		delta = -delta
	}
	if delta > c.windowSec {
		return fmt.Errorf("trust: verify envelope: %w", ErrEnvelopeExpired)
	}

	if _, seen := c.nonces.Get(env.Nonce); seen {
		return fmt.Errorf("trust: verify envelope: %w", ErrNonceReused)
	}
	// Recorded before the signature check: a replayed nonce must be
	// rejected on its second presentation even if the first attempt's
	// signature was invalid.
	c.nonces.Add(env.Nonce, struct{}{})

	if err := c.verifySignature(env.Payload, env.Signature); err != nil {
		return fmt.Errorf("trust: verify envelope: %w", err)
	}
	return nil
}
