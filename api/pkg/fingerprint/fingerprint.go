// Package fingerprint implements PSK-derived TOFU pinning of peer
// machines, persisted as JSON. Grounded in
// original_source/src/core/fingerprint.rs, with one correction: this
// implementation persists via temp-file-then-rename (§4.3's
// recommendation) instead of the original's direct fs::write, to avoid
// torn writes on crash.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fingerprint pins one peer's PSK-derived hash.
type Fingerprint struct {
	MachineName  string `json:"machine_name"`
	Hash         string `json:"hash"`
	FirstSeen    string `json:"first_seen"`
	LastVerified string `json:"last_verified"`
}

// HashPSK computes the pinned quantity: hex(SHA-256(psk)).
func HashPSK(psk string) string {
	sum := sha256.Sum256([]byte(psk))
	return hex.EncodeToString(sum[:])
}

// VerifyResult is the outcome of Store.VerifyOrSave.
type VerifyResult int

const (
	Verified VerifyResult = iota
	FirstConnection
	Mismatch
)

// Store is a mutex-guarded machine_name -> Fingerprint mapping,
// persisted atomically as JSON after every mutation. One Store is
// shared by every Transport connection in the process (§3, §5).
type Store struct {
	mu     sync.Mutex
	path   string
	byName map[string]Fingerprint
	logger zerolog.Logger

	// sessionID identifies this process's run for log correlation
	// only; it plays no part in TOFU identity, which is keyed solely
	// by machine name and PSK hash.
	sessionID string
}

// Load reads an existing store from path, or starts an empty one if
// the file does not exist yet; the parent directory is created if
// necessary.
func Load(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("fingerprint: create store dir: %w", err)
	}

	s := &Store{path: path, byName: make(map[string]Fingerprint), logger: logger, sessionID: uuid.NewString()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("fingerprint: read store: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.byName); err != nil {
		return nil, fmt.Errorf("fingerprint: parse store: %w", err)
	}
	return s, nil
}

// Get returns the pinned Fingerprint for a machine, if any.
func (s *Store) Get(name string) (Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.byName[name]
	return fp, ok
}

// SessionID returns the random identifier generated for this Store's
// process lifetime, for correlating log lines across a single run.
func (s *Store) SessionID() string {
	return s.sessionID
}

// List returns a snapshot of every pinned Fingerprint.
func (s *Store) List() []Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fingerprint, 0, len(s.byName))
	for _, fp := range s.byName {
		out = append(out, fp)
	}
	return out
}

// Remove deletes a pinned Fingerprint, persisting the change.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byName, name)
	return s.persistLocked()
}

// Save pins a Fingerprint for a machine unconditionally, persisting
// the change. Most callers want VerifyOrSave instead; Save exists for
// operator tooling (e.g. re-pinning a peer after a legitimate key
// rotation; Remove deletes a pin outright).
func (s *Store) Save(fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[fp.MachineName] = fp
	return s.persistLocked()
}

// VerifyOrSave is the Handshake's entry point (§4.3, §4.4, P4): if no
// fingerprint is pinned for name, pin hash now (FirstConnection). If
// one is pinned and matches, refresh LastVerified (Verified). If one
// is pinned and differs, the store is left untouched (Mismatch) — the
// caller must abort the connection.
func (s *Store) VerifyOrSave(name, hash string) (VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	existing, ok := s.byName[name]
	if !ok {
		fp := Fingerprint{MachineName: name, Hash: hash, FirstSeen: now, LastVerified: now}
		s.byName[name] = fp
		s.logger.Warn().Str("machine", name).Str("hash", hash).
			Msg("fingerprint: first connection, pinning new hash")
		return FirstConnection, s.persistLocked()
	}

	if existing.Hash != hash {
		s.logger.Error().Str("machine", name).Str("stored", existing.Hash).Str("received", hash).
			Msg("fingerprint: mismatch, refusing connection")
		return Mismatch, nil
	}

	existing.LastVerified = now
	s.byName[name] = existing
	return Verified, s.persistLocked()
}

// persistLocked writes the store to disk atomically: marshal, write
// to a temporary sibling file, then rename over the real path so a
// crash mid-write never leaves a torn file. Must be called with mu
// held.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.byName, "", "  ")
	if err != nil {
		return fmt.Errorf("fingerprint: marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("fingerprint: write temp store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("fingerprint: rename temp store: %w", err)
	}
	return nil
}
