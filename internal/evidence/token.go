package evidence

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/cookieaudit/internal/model"
)

// DefaultTokenTTL is how long a scan token stays valid.
const DefaultTokenTTL = time.Hour

const (
	nonceLen = 32
	macLen   = 64
)

// TokenManager issues and validates scan tokens.
//
// A token is "<nonce>.<mac>": a random 32-hex nonce and a keyed BLAKE2b-256
// MAC over the nonce, the run id and the expiry. At most one token is
// active per run; issuing a new one replaces the old one.
type TokenManager struct {
	mu     sync.Mutex
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	active map[string]model.ScanToken // nonce -> token
	byRun  map[string]string          // run id -> nonce
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithKey sets the MAC key. It must be 1 to 64 bytes long; other lengths
// are ignored and the random key is kept.
func WithKey(key []byte) TokenOption {
	return func(m *TokenManager) {
		if len(key) > 0 && len(key) <= blake2b.Size {
			m.key = append([]byte(nil), key...)
		}
	}
}

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenManager creates a TokenManager with a random 32-byte key.
func NewTokenManager(opts ...TokenOption) (*TokenManager, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}
	m := &TokenManager{
		key:    key,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		active: make(map[string]model.ScanToken),
		byRun:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue creates the active token of runID, revoking any earlier one.
func (m *TokenManager) Issue(runID string) (model.ScanToken, error) {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	expires := m.now().Add(m.ttl).UTC().Truncate(time.Second)

	mac, err := m.sign(nonce, runID, expires)
	if err != nil {
		return model.ScanToken{}, err
	}
	tok := model.ScanToken{
		Value:     nonce + "." + mac,
		RunID:     runID,
		ExpiresAt: expires,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byRun[runID]; ok {
		delete(m.active, old)
	}
	m.active[nonce] = tok
	m.byRun[runID] = nonce
	return tok, nil
}

// Validate checks value and returns the token it names. Unknown, revoked
// and forged tokens yield ErrInvalidToken; tokens past their expiry
// yield ErrExpiredToken.
func (m *TokenManager) Validate(value string) (model.ScanToken, error) {
	nonce, mac, ok := strings.Cut(value, ".")
	if !ok || len(nonce) != nonceLen || len(mac) != macLen || !isHex(nonce) || !isHex(mac) {
		return model.ScanToken{}, ErrInvalidToken
	}

	m.mu.Lock()
	tok, found := m.active[nonce]
	m.mu.Unlock()
	if !found {
		return model.ScanToken{}, ErrInvalidToken
	}

	want, err := m.sign(nonce, tok.RunID, tok.ExpiresAt)
	if err != nil {
		return model.ScanToken{}, err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(mac)) != 1 {
		return model.ScanToken{}, ErrInvalidToken
	}
	if tok.Expired(m.now()) {
		return model.ScanToken{}, ErrExpiredToken
	}
	return tok, nil
}

// Active returns the active token of runID.
func (m *TokenManager) Active(runID string) (model.ScanToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonce, ok := m.byRun[runID]
	if !ok {
		return model.ScanToken{}, false
	}
	return m.active[nonce], true
}

// Revoke invalidates the token of runID.
func (m *TokenManager) Revoke(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if nonce, ok := m.byRun[runID]; ok {
		delete(m.active, nonce)
		delete(m.byRun, runID)
	}
}

func (m *TokenManager) sign(nonce, runID string, expires time.Time) (string, error) {
	h, err := blake2b.New256(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to create token MAC: %w", err)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(expires.Unix())) //nolint:gosec // expiry is always after the epoch
	h.Write([]byte(nonce))
	h.Write([]byte{0})
	h.Write([]byte(runID))
	h.Write([]byte{0})
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
