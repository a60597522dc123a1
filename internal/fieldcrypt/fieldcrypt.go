// internal/fieldcrypt/fieldcrypt.go
//
// At-rest encryption for individual sensitive string attributes.
//
// Context
// -------
// A handful of columns (medical condition detail, custody-restriction
// notes) are too sensitive to sit in the database as plaintext, but they
// must remain ordinary VARCHAR/TEXT columns so the schema, backups, and
// search tooling for the *non*-encrypted fields stay untouched.  The
// compromise is a versioned, self-describing string envelope:
//
//	enc:v1:<hex iv>:<hex ciphertext>:<hex tag>
//
// AES-256-GCM, fresh 96-bit nonce per call, 128-bit tag.  The version tag
// lets a future algorithm coexist without a flag-day migration, and the
// prefix lets Decrypt pass legacy plaintext through unchanged, so rollout
// needs no backfill gate.
//
// Failure philosophy
// ------------------
// The cipher never takes a page down.  Missing or malformed key: Encrypt
// returns the plaintext and logs loudly (ERROR + counter).  Corrupt
// envelope, tag mismatch, or wrong key: Decrypt returns the stored value
// as-is and logs for operator investigation.  A broken page is worse than
// temporarily showing ciphertext, given the value already sits behind
// access control.  Both degradations are capability-flagged, not lazily
// discovered, so tests can pin them deterministically.
//
// Notes
// -----
// • Nonce reuse under GCM is catastrophic; nonces come from crypto/rand
//   on every call, never from a counter that could be rewound.
// • Oxford commas, two spaces after periods.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/EcodiaTate/wattleos-sub008/internal/metrics"
)

// Envelope constants.  gcmTagSize mirrors crypto/cipher's default; the
// seal output is split so the tag is independently visible in the
// envelope, which makes tamper tests and manual inspection tractable.
const (
	Prefix     = "enc:v1:"
	nonceSize  = 12 // 96-bit IV, the GCM-recommended size
	gcmTagSize = 16 // 128-bit authentication tag
)

// Cipher encrypts and decrypts field values.  The zero value is the
// degraded cipher: Available() == false, Encrypt passes plaintext
// through, Decrypt only ever passes values through.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// New builds a Cipher from a 64-character hex key (256 bits).  An empty
// key yields the degraded cipher and is not an error; a present but
// malformed key is also degraded, but reported, since it means an
// operator intended encryption and misconfigured it.
func New(hexKey string) *Cipher {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		zap.S().Warnw("field encryption key absent, cipher degraded to passthrough")
		return &Cipher{}
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		zap.S().Errorw("field encryption key malformed, cipher degraded to passthrough",
			"err", err, "len", len(key))
		return &Cipher{}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		zap.S().Errorw("field cipher init failed", "err", err)
		return &Cipher{}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		zap.S().Errorw("field cipher gcm init failed", "err", err)
		return &Cipher{}
	}

	return &Cipher{aead: aead, rand: rand.Reader}
}

// Available reports whether a key is loaded.  Call sites use this flag to
// make degraded mode observable rather than inferring it from output.
func (c *Cipher) Available() bool { return c != nil && c.aead != nil }

// IsEnvelope reports whether stored carries the versioned envelope prefix.
func IsEnvelope(stored string) bool { return strings.HasPrefix(stored, Prefix) }

// Encrypt seals plaintext into an envelope.  Degraded cipher returns the
// plaintext unchanged; the write path must never be blocked by a missing
// key.  Empty input is returned as-is so optional columns stay empty.
func (c *Cipher) Encrypt(plaintext string) string {
	if plaintext == "" {
		return plaintext
	}
	if !c.Available() {
		metrics.FieldEncryptFallbackTotal.Inc()
		zap.S().Errorw("field encryption unavailable, storing plaintext",
			"len", len(plaintext))
		return plaintext
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		metrics.FieldEncryptFallbackTotal.Inc()
		zap.S().Errorw("field encryption nonce generation failed, storing plaintext", "err", err)
		return plaintext
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	var b strings.Builder
	b.Grow(len(Prefix) + 2*(len(nonce)+len(ct)+len(tag)) + 2)
	b.WriteString(Prefix)
	b.WriteString(hex.EncodeToString(nonce))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(ct))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(tag))
	return b.String()
}

// Decrypt opens an envelope.  Values without the prefix are legacy
// plaintext and pass through unchanged.  Any failure—corrupt envelope,
// tag mismatch, wrong key, degraded cipher—returns the stored value
// untouched and logs, never a corrupted plaintext: authentication fails
// closed, availability fails open.
func (c *Cipher) Decrypt(stored string) string {
	if !IsEnvelope(stored) {
		return stored
	}
	if !c.Available() {
		metrics.FieldDecryptErrorsTotal.Inc()
		zap.S().Errorw("field decryption unavailable, returning stored value")
		return stored
	}

	parts := strings.Split(strings.TrimPrefix(stored, Prefix), ":")
	if len(parts) != 3 {
		return c.decryptFailed(stored, "malformed envelope")
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return c.decryptFailed(stored, "bad iv")
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return c.decryptFailed(stored, "bad ciphertext")
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != gcmTagSize {
		return c.decryptFailed(stored, "bad tag")
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return c.decryptFailed(stored, "authentication failed")
	}
	return string(plaintext)
}

func (c *Cipher) decryptFailed(stored, reason string) string {
	metrics.FieldDecryptErrorsTotal.Inc()
	zap.S().Errorw("field decryption failed, returning stored value", "reason", reason)
	return stored
}
