package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"moodlog-go/internal/archive"
	"moodlog-go/internal/config"
	"moodlog-go/internal/encryption"
	"moodlog-go/internal/model"
	"moodlog-go/internal/moodlog"
	"moodlog-go/internal/store"
)

// MoodApp is the application layer between the CLI and JournalService.
// It constructs all dependencies from config, binds the configured user's
// session, and manages store and log-file lifecycle on Close.
type MoodApp struct {
	cfg       *config.Config
	store     moodlog.DocumentStore
	service   *moodlog.JournalService
	encryptor moodlog.Encryptor
	logFile   *os.File
}

// NewMoodApp creates a fully wired MoodApp from the given config.
// operation identifies the CLI command being run (e.g. "SaveEntry",
// "Social"). The caller must call Close when done.
func NewMoodApp(ctx context.Context, cfg *config.Config, operation string) (*MoodApp, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("no user_id configured")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolving timezone: %w", err)
	}

	st, err := store.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		closeStore(st)
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		closeStore(st)
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := moodlog.NewJournalService(st, cfg.Window(), loc,
		moodlog.RealClock{}, moodlog.UUIDGenerator{}, &slogAdapter{l: logger.With("op", operation)})

	if err := svc.Bind(ctx, moodlog.StaticSession{ID: cfg.UserID}); err != nil {
		logFile.Close()
		closeStore(st)
		return nil, fmt.Errorf("binding session: %w", err)
	}

	return &MoodApp{
		cfg:       cfg,
		store:     st,
		service:   svc,
		encryptor: enc,
		logFile:   logFile,
	}, nil
}

// Service exposes the journal service for command handlers.
func (a *MoodApp) Service() *moodlog.JournalService { return a.service }

// Encryptor exposes the configured export encryptor.
func (a *MoodApp) Encryptor() moodlog.Encryptor { return a.encryptor }

// ParseDate resolves a date argument: empty means today in the configured
// time zone.
func (a *MoodApp) ParseDate(raw string) (moodlog.DateKey, error) {
	if raw == "" {
		return a.service.Today(), nil
	}
	return moodlog.ParseDateKey(raw)
}

// SaveEntry saves mood and/or note for the given date. moodSet and noteSet
// distinguish "not provided" from "provided empty", preserving the upsert
// merge semantics.
func (a *MoodApp) SaveEntry(ctx context.Context, rawDate, moodTag, note string, moodSet, noteSet bool) (model.StreakState, error) {
	key, err := a.ParseDate(rawDate)
	if err != nil {
		return model.StreakState{}, err
	}

	var moodArg *model.Mood
	if moodSet {
		m := model.Mood(moodTag)
		moodArg = &m
	}
	var noteArg *string
	if noteSet {
		noteArg = &note
	}
	if moodArg == nil && noteArg == nil {
		return model.StreakState{}, fmt.Errorf("nothing to save: provide a mood, a note, or both")
	}

	return a.service.SaveEntry(ctx, key, moodArg, noteArg)
}

// DeleteEntry removes the entry for the given date.
func (a *MoodApp) DeleteEntry(ctx context.Context, rawDate string) error {
	key, err := a.ParseDate(rawDate)
	if err != nil {
		return err
	}
	return a.service.DeleteEntry(ctx, key)
}

// Social resolves the social view for the given date.
func (a *MoodApp) Social(ctx context.Context, rawDate string) (model.SocialSnapshot, error) {
	key, err := a.ParseDate(rawDate)
	if err != nil {
		return model.SocialSnapshot{}, err
	}
	return a.service.Social(ctx, key)
}

// Archive resolves a configured archive by name. An empty name selects the
// first configured archive.
func (a *MoodApp) Archive(ctx context.Context, name string) (moodlog.Archive, error) {
	if len(a.cfg.Archives) == 0 {
		return nil, fmt.Errorf("no archives configured")
	}

	var chosen *config.ArchiveConfig
	if name == "" {
		chosen = &a.cfg.Archives[0]
	} else {
		for i := range a.cfg.Archives {
			if a.cfg.Archives[i].Name == name {
				chosen = &a.cfg.Archives[i]
				break
			}
		}
		if chosen == nil {
			return nil, fmt.Errorf("no archive named %q configured", name)
		}
	}

	arch, err := archive.NewArchiveFromConfig(ctx, *chosen)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	if err := arch.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("validating archive: %w", err)
	}
	return arch, nil
}

// Export serializes the journal, encrypts it and stores it in the named
// archive. Returns the export id.
func (a *MoodApp) Export(ctx context.Context, archiveName string) (string, error) {
	arch, err := a.Archive(ctx, archiveName)
	if err != nil {
		return "", err
	}
	return a.service.Export(ctx, arch, a.encryptor)
}

// Close detaches the session and releases the store and log file.
func (a *MoodApp) Close() error {
	a.service.Close()

	var firstErr error
	if err := closeStore(a.store); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// closeStore closes store backends that hold resources (sqlite); the
// memory backend has nothing to release.
func closeStore(st moodlog.DocumentStore) error {
	if c, ok := st.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
