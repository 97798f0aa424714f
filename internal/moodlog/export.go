package moodlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"moodlog-go/internal/model"
)

// Archive stores encrypted journal exports. Implementations live under
// internal/archive (memory, filesystem, S3).
type Archive interface {
	// Put stores an export identified by id. Storing the same id twice
	// overwrites. size is the number of bytes that will be read from r.
	Put(id string, r io.Reader, size int64) error

	// Get retrieves an export by id and writes it to w.
	Get(id string, w io.Writer) error

	// List returns the ids of all stored exports.
	List() ([]string, error)

	// ValidateSetup verifies the archive is accessible and configured.
	ValidateSetup() error
}

// Encryptor protects exports at rest. The production implementation uses
// age X25519 keys with a passphrase-encrypted private key.
type Encryptor interface {
	// Setup generates and stores a key pair protected by passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key with the passphrase and returns a
	// context for decrypting data.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity for decrypting exports.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// ExportManifest is the JSON payload of one journal export.
type ExportManifest struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Entries    []model.MoodEntry `json:"entries"`
	Streak     model.StreakState `json:"streak"`
}

// Export serializes the attached user's full journal and streak state,
// encrypts it and stores it in the archive. Returns the export id.
func (s *JournalService) Export(ctx context.Context, archive Archive, enc Encryptor) (string, error) {
	userID := s.cache.UserID()
	if userID == "" {
		return "", fmt.Errorf("export: no user attached")
	}
	if !enc.IsConfigured() {
		return "", fmt.Errorf("export: encryption is not set up")
	}

	entries, err := s.gateway.AllMoodEntries(ctx, userID, s.logger)
	if err != nil {
		return "", fmt.Errorf("collecting entries: %w", err)
	}
	streak, err := s.streaks.Current(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading streak: %w", err)
	}

	manifest := ExportManifest{
		ID:         s.idgen.New(),
		UserID:     userID,
		ExportedAt: s.clock.Now(),
		Entries:    entries,
		Streak:     streak,
	}

	plain, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	var sealed bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
		return "", fmt.Errorf("encrypting export: %w", err)
	}

	if err := archive.Put(manifest.ID, bytes.NewReader(sealed.Bytes()), int64(sealed.Len())); err != nil {
		return "", fmt.Errorf("storing export: %w", err)
	}

	s.logger.Info("journal exported", "user", userID, "export", manifest.ID, "entries", len(entries))
	return manifest.ID, nil
}

// ReadExport fetches an export from the archive and decrypts it.
func ReadExport(archive Archive, dec DecryptionContext, id string) (*ExportManifest, error) {
	var sealed bytes.Buffer
	if err := archive.Get(id, &sealed); err != nil {
		return nil, fmt.Errorf("fetching export: %w", err)
	}

	var plain bytes.Buffer
	if err := dec.Decrypt(&sealed, &plain); err != nil {
		return nil, fmt.Errorf("decrypting export: %w", err)
	}

	var manifest ExportManifest
	if err := json.Unmarshal(plain.Bytes(), &manifest); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}
	return &manifest, nil
}
