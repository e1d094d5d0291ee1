// Package fieldcrypt encrypts sensitive record fields under rotating AEAD
// keys. Keys live in memory only; ciphertexts carry the key id and version
// that sealed them so older keys stay usable after rotation.
package fieldcrypt

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
	"github.com/aussiebroadwan/careportal/pkg/cryptox"
	"github.com/aussiebroadwan/careportal/pkg/idx"
)

const (
	DefaultAlgorithm        = cryptox.AlgAES256GCM
	DefaultRotationInterval = 90 * 24 * time.Hour
	DefaultMaxRetained      = 5
	DefaultRetentionWindow  = 365 * 24 * time.Hour
)

// Rotation reasons recorded with each new key.
const (
	ReasonInitial   = "initial"
	ReasonScheduled = "scheduled"
	ReasonManual    = "manual"
)

// RotationEvent describes one rotation. It never contains key material.
type RotationEvent struct {
	KeyID         string
	Version       int
	Algorithm     string
	Reason        string
	RotatedAt     time.Time
	ExpiresAt     time.Time
	RetiredKeyIDs []string
}

// RotationRecorder keeps an audit trail of rotations.
type RotationRecorder interface {
	RecordRotation(ctx context.Context, ev RotationEvent) error
}

// Config configures a Manager. Zero fields take the defaults.
type Config struct {
	Algorithm        string
	RotationInterval time.Duration
	// Retired keys are dropped once more than MaxRetained versions are held
	// or once they have been retired for longer than RetentionWindow. The
	// current key is never dropped.
	MaxRetained     int
	RetentionWindow time.Duration

	Clock    clock.Clock
	Recorder RotationRecorder
	Logger   *slog.Logger
}

// KeyInfo is key metadata safe to expose.
type KeyInfo struct {
	KeyID     string     `json:"key_id"`
	Version   int        `json:"version"`
	Algorithm string     `json:"algorithm"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	Reason    string     `json:"reason"`
	Current   bool       `json:"current"`
}

// KeyStatus summarises the current key.
type KeyStatus struct {
	CurrentKeyID string    `json:"current_key_id"`
	Version      int       `json:"version"`
	Algorithm    string    `json:"algorithm"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RetainedKeys int       `json:"retained_keys"`
	RotationDue  bool      `json:"rotation_due"`
}

type key struct {
	id        string
	version   int
	alg       string
	material  []byte
	aead      cipher.AEAD
	createdAt time.Time
	expiresAt time.Time
	retiredAt time.Time
	reason    string
}

func (k *key) info(current bool) KeyInfo {
	ki := KeyInfo{
		KeyID:     k.id,
		Version:   k.version,
		Algorithm: k.alg,
		CreatedAt: k.createdAt,
		ExpiresAt: k.expiresAt,
		Reason:    k.reason,
		Current:   current,
	}
	if !k.retiredAt.IsZero() {
		at := k.retiredAt
		ki.RetiredAt = &at
	}
	return ki
}

// Manager owns the key ring.
type Manager struct {
	cfg   Config
	clock clock.Clock
	log   *slog.Logger

	mu      sync.RWMutex
	keys    map[string]*key
	current *key
}

// NewManager validates cfg and generates the first key.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	if !cryptox.SupportedAlgorithm(cfg.Algorithm) {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrConfigurationInvalid, cfg.Algorithm)
	}
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = DefaultRotationInterval
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = DefaultMaxRetained
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = DefaultRetentionWindow
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		cfg:   cfg,
		clock: clock.OrReal(cfg.Clock),
		log:   log.With("component", "fieldcrypt"),
		keys:  make(map[string]*key),
	}
	if _, err := m.RotateKey(ctx, ReasonInitial); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) newKey(version int, reason string, now time.Time) (*key, error) {
	material, err := cryptox.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: generate key: %w", err)
	}
	id := idx.NewKind(idx.KindKey, now).String()

	// Each AEAD key is derived from the material bound to its id and
	// algorithm, so the same material can never serve two ciphers.
	aeadKey, err := cryptox.DeriveKey(material, []byte(id), "careportal/fieldcrypt/"+m.cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	aead, err := cryptox.NewAEAD(m.cfg.Algorithm, aeadKey)
	cryptox.Zero(aeadKey)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}

	return &key{
		id:        id,
		version:   version,
		alg:       m.cfg.Algorithm,
		material:  material,
		aead:      aead,
		createdAt: now,
		expiresAt: now.Add(m.cfg.RotationInterval),
		reason:    reason,
	}, nil
}

// EncryptField seals plaintext under the current key.
func (m *Manager) EncryptField(plaintext, fieldName string) (EncryptedField, error) {
	if err := validFieldName(fieldName); err != nil {
		return EncryptedField{}, err
	}
	return m.seal([]byte(plaintext), []string{fieldName})
}

// EncryptFields seals several named values as one JSON payload.
func (m *Manager) EncryptFields(values map[string]string) (EncryptedField, error) {
	if len(values) == 0 {
		return EncryptedField{}, fmt.Errorf("%w: no fields", ErrMalformedField)
	}
	names := slices.Sorted(maps.Keys(values))
	for _, name := range names {
		if err := validFieldName(name); err != nil {
			return EncryptedField{}, err
		}
	}
	if len(names) == 1 {
		return m.seal([]byte(values[names[0]]), names)
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return EncryptedField{}, fmt.Errorf("fieldcrypt: encode fields: %w", err)
	}
	return m.seal(payload, names)
}

func (m *Manager) seal(plaintext []byte, fields []string) (EncryptedField, error) {
	m.mu.RLock()
	k := m.current
	m.mu.RUnlock()

	ad := associatedData(k.alg, k.id, k.version, fields)
	nonce, ct, err := cryptox.Seal(k.aead, plaintext, ad)
	if err != nil {
		return EncryptedField{}, fmt.Errorf("fieldcrypt: seal: %w", err)
	}

	return EncryptedField{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Metadata: Metadata{
			Algorithm:       k.alg,
			KeyID:           k.id,
			KeyVersion:      k.version,
			IV:              base64.StdEncoding.EncodeToString(nonce),
			EncryptedAt:     m.clock.Now(),
			EncryptedFields: fields,
		},
	}, nil
}

// DecryptField opens a single-field ciphertext. It never returns partial
// plaintext: any failure yields an error and an empty string.
func (m *Manager) DecryptField(f EncryptedField) (string, error) {
	if len(f.Metadata.EncryptedFields) != 1 {
		return "", fmt.Errorf("%w: expected one field, got %d", ErrMalformedField, len(f.Metadata.EncryptedFields))
	}
	pt, err := m.open(f)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// DecryptFields opens a ciphertext produced by EncryptField or EncryptFields.
func (m *Manager) DecryptFields(f EncryptedField) (map[string]string, error) {
	pt, err := m.open(f)
	if err != nil {
		return nil, err
	}

	names := f.Metadata.EncryptedFields
	if len(names) == 1 {
		return map[string]string{names[0]: string(pt)}, nil
	}

	var values map[string]string
	if err := json.Unmarshal(pt, &values); err != nil {
		return nil, fmt.Errorf("%w: payload is not a field map", ErrDecryptionFailed)
	}
	if !slices.Equal(slices.Sorted(maps.Keys(values)), slices.Sorted(slices.Values(names))) {
		return nil, fmt.Errorf("%w: payload fields differ from metadata", ErrDecryptionFailed)
	}
	return values, nil
}

func (m *Manager) open(f EncryptedField) ([]byte, error) {
	d, err := f.decode()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	k, ok := m.keys[f.Metadata.KeyID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, f.Metadata.KeyID)
	}
	if k.alg != f.Metadata.Algorithm || k.version != f.Metadata.KeyVersion {
		return nil, fmt.Errorf("%w: metadata does not match key", ErrDecryptionFailed)
	}

	ad := associatedData(f.Metadata.Algorithm, f.Metadata.KeyID, f.Metadata.KeyVersion, f.Metadata.EncryptedFields)
	pt, err := cryptox.Open(k.aead, d.nonce, d.ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return pt, nil
}

// Reencrypt moves f onto the current key. It reports false when f already
// uses the current key.
func (m *Manager) Reencrypt(f EncryptedField) (EncryptedField, bool, error) {
	m.mu.RLock()
	currentID := m.current.id
	m.mu.RUnlock()
	if f.Metadata.KeyID == currentID {
		return f, false, nil
	}

	values, err := m.DecryptFields(f)
	if err != nil {
		return EncryptedField{}, false, err
	}
	out, err := m.EncryptFields(values)
	if err != nil {
		return EncryptedField{}, false, err
	}
	return out, true, nil
}

// RotateKey makes a fresh key current. Existing ciphertexts are not
// re-encrypted; their keys remain readable until retention drops them.
func (m *Manager) RotateKey(ctx context.Context, reason string) (KeyStatus, error) {
	if reason == "" {
		reason = ReasonManual
	}
	now := m.clock.Now()

	m.mu.Lock()
	version := 1
	if m.current != nil {
		version = m.current.version + 1
	}
	next, err := m.newKey(version, reason, now)
	if err != nil {
		m.mu.Unlock()
		return KeyStatus{}, err
	}
	if m.current != nil {
		m.current.retiredAt = now
	}
	m.keys[next.id] = next
	m.current = next
	dropped := m.pruneLocked(now)
	status := m.statusLocked(now)
	m.mu.Unlock()

	m.log.InfoContext(ctx, "encryption key rotated",
		"key_id", next.id,
		"version", next.version,
		"reason", reason,
		"retired", len(dropped),
	)

	if m.cfg.Recorder != nil {
		ev := RotationEvent{
			KeyID:         next.id,
			Version:       next.version,
			Algorithm:     next.alg,
			Reason:        reason,
			RotatedAt:     now,
			ExpiresAt:     next.expiresAt,
			RetiredKeyIDs: dropped,
		}
		if err := m.cfg.Recorder.RecordRotation(ctx, ev); err != nil {
			// The new key is already live; only the audit row is missing.
			m.log.ErrorContext(ctx, "failed to record key rotation", "key_id", next.id, "error", err)
		}
	}
	return status, nil
}

// RotateIfDue rotates when the current key has passed its expiry.
func (m *Manager) RotateIfDue(ctx context.Context) (bool, error) {
	m.mu.RLock()
	due := !m.clock.Now().Before(m.current.expiresAt)
	m.mu.RUnlock()
	if !due {
		return false, nil
	}
	if _, err := m.RotateKey(ctx, ReasonScheduled); err != nil {
		return false, err
	}
	return true, nil
}

// Prune applies the retention policy and returns the dropped key ids.
func (m *Manager) Prune() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(m.clock.Now())
}

func (m *Manager) pruneLocked(now time.Time) []string {
	retired := make([]*key, 0, len(m.keys))
	for _, k := range m.keys {
		if k != m.current {
			retired = append(retired, k)
		}
	}
	slices.SortFunc(retired, func(a, b *key) int { return a.version - b.version })

	excess := len(m.keys) - m.cfg.MaxRetained
	cutoff := now.Add(-m.cfg.RetentionWindow)

	var dropped []string
	for _, k := range retired {
		if excess <= 0 && k.retiredAt.After(cutoff) {
			continue
		}
		cryptox.Zero(k.material)
		delete(m.keys, k.id)
		dropped = append(dropped, k.id)
		excess--
	}
	return dropped
}

// Status reports the current key.
func (m *Manager) Status() KeyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked(m.clock.Now())
}

func (m *Manager) statusLocked(now time.Time) KeyStatus {
	return KeyStatus{
		CurrentKeyID: m.current.id,
		Version:      m.current.version,
		Algorithm:    m.current.alg,
		CreatedAt:    m.current.createdAt,
		ExpiresAt:    m.current.expiresAt,
		RetainedKeys: len(m.keys),
		RotationDue:  !now.Before(m.current.expiresAt),
	}
}

// Keys lists metadata for every retained key, newest first.
func (m *Manager) Keys() []KeyInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]KeyInfo, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k.info(k == m.current))
	}
	slices.SortFunc(out, func(a, b KeyInfo) int { return b.Version - a.Version })
	return out
}
