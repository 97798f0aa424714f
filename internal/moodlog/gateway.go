package moodlog

import (
	"context"
	"fmt"
	"time"

	"moodlog-go/internal/model"
)

// RemoteMoodGateway issues typed operations against the document store for
// mood entries, reactions, friends and profiles. It owns no state; every
// call is idempotent from the caller's perspective.
type RemoteMoodGateway struct {
	store DocumentStore
}

func NewRemoteMoodGateway(store DocumentStore) *RemoteMoodGateway {
	return &RemoteMoodGateway{store: store}
}

// MoodEntry returns the user's entry for the given date key, or nil if none
// exists. Not-found is not an error.
func (g *RemoteMoodGateway) MoodEntry(ctx context.Context, userID string, key DateKey) (*model.MoodEntry, error) {
	doc, err := g.store.Get(ctx, MoodPath(userID, key))
	if err != nil {
		return nil, fmt.Errorf("fetching mood entry: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	entry, err := decodeMoodEntry(*doc)
	if err != nil {
		return nil, fmt.Errorf("decoding mood entry %s: %w", doc.Path, err)
	}
	return &entry, nil
}

// UpsertMoodEntry merges mood and note into the user's entry for key,
// creating it on first save. A nil mood or note preserves the prior value.
// createdAt is preserved when the document pre-exists; updatedAt is always
// set to now. The whole read-modify-write runs in one transaction.
func (g *RemoteMoodGateway) UpsertMoodEntry(ctx context.Context, userID string, key DateKey, mood *model.Mood, note *string, now time.Time) error {
	if mood != nil && !mood.Valid() {
		return fmt.Errorf("unknown mood tag %q", *mood)
	}

	path := MoodPath(userID, key)
	err := g.store.RunTransaction(ctx, func(tx Txn) error {
		entry := model.MoodEntry{Key: string(key), CreatedAt: now}

		doc, err := tx.Get(path)
		if err != nil {
			return fmt.Errorf("reading existing entry: %w", err)
		}
		if doc != nil {
			existing, err := decodeMoodEntry(*doc)
			if err != nil {
				// A malformed document is overwritten rather than
				// blocking the save forever.
				existing = model.MoodEntry{Key: string(key), CreatedAt: now}
			}
			entry = existing
		}

		if mood != nil {
			entry.Mood = *mood
		}
		if note != nil {
			entry.Note = *note
		}
		entry.UpdatedAt = now

		tx.Set(path, encodeMoodEntry(entry), false)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting mood entry %s: %w", path, err)
	}
	return nil
}

// DeleteMoodEntry removes the user's entry for key. Deleting an absent
// entry succeeds.
func (g *RemoteMoodGateway) DeleteMoodEntry(ctx context.Context, userID string, key DateKey) error {
	if err := g.store.Delete(ctx, MoodPath(userID, key)); err != nil {
		return fmt.Errorf("deleting mood entry: %w", err)
	}
	return nil
}

// MoodEntryByCreatedRange returns the user's entry whose createdAt falls in
// [start, end), or nil if none. This is the cross-time-zone lookup: the
// range expresses the viewer's calendar day in UTC, while the entry's own
// key was assigned in its owner's time zone.
func (g *RemoteMoodGateway) MoodEntryByCreatedRange(ctx context.Context, userID string, start, end time.Time) (*model.MoodEntry, error) {
	docs, err := g.store.QueryCreatedRange(ctx, MoodCollection(userID), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying mood entries by range: %w", err)
	}
	for _, doc := range docs {
		entry, err := decodeMoodEntry(doc)
		if err != nil {
			continue
		}
		return &entry, nil
	}
	return nil, nil
}

// AllMoodEntries returns every entry the user has ever recorded, skipping
// documents that fail to decode.
func (g *RemoteMoodGateway) AllMoodEntries(ctx context.Context, userID string, logger Logger) ([]model.MoodEntry, error) {
	docs, err := g.store.List(ctx, MoodCollection(userID))
	if err != nil {
		return nil, fmt.Errorf("listing mood entries: %w", err)
	}
	entries := make([]model.MoodEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := decodeMoodEntry(doc)
		if err != nil {
			logger.Warn("skipping undecodable mood document", "path", doc.Path, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SubscribeWindow opens a live query over the user's entries with keys in
// [start, end].
func (g *RemoteMoodGateway) SubscribeWindow(ctx context.Context, userID string, start, end DateKey) (Subscription, error) {
	sub, err := g.store.SubscribeRange(ctx, MoodCollection(userID), string(start), string(end))
	if err != nil {
		return nil, fmt.Errorf("subscribing to mood window: %w", err)
	}
	return sub, nil
}

// Friends returns the user's friend list. A missing or malformed friend
// document is skipped; failure to list at all is an error.
func (g *RemoteMoodGateway) Friends(ctx context.Context, userID string) ([]model.Friend, error) {
	docs, err := g.store.List(ctx, FriendCollection(userID))
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	friends := make([]model.Friend, 0, len(docs))
	for _, doc := range docs {
		f, err := decodeFriend(doc)
		if err != nil {
			continue
		}
		friends = append(friends, f)
	}
	return friends, nil
}

// AddFriend records a friend relationship. Re-adding an existing friend
// refreshes the cached display name.
func (g *RemoteMoodGateway) AddFriend(ctx context.Context, userID, friendID, displayName string, now time.Time) error {
	data := map[string]any{
		fieldDisplayName: displayName,
		fieldAddedAt:     now,
	}
	if err := g.store.Set(ctx, FriendPath(userID, friendID), data, false); err != nil {
		return fmt.Errorf("adding friend: %w", err)
	}
	return nil
}

func (g *RemoteMoodGateway) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if err := g.store.Delete(ctx, FriendPath(userID, friendID)); err != nil {
		return fmt.Errorf("removing friend: %w", err)
	}
	return nil
}

// Profile returns a user's profile document, or nil if none exists.
func (g *RemoteMoodGateway) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	doc, err := g.store.Get(ctx, UserPath(userID))
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	p, err := decodeProfile(*doc)
	if err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", doc.Path, err)
	}
	return &p, nil
}

// UpsertProfile merges display name and username into the user document,
// leaving unrelated fields (streak state) untouched.
func (g *RemoteMoodGateway) UpsertProfile(ctx context.Context, p model.Profile) error {
	data := map[string]any{
		fieldDisplayName: p.DisplayName,
		fieldUsername:    p.Username,
	}
	if err := g.store.Set(ctx, UserPath(p.UserID), data, true); err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// StreakState reads the persisted streak fields off the user document.
// A missing document or missing fields decode as the zero state.
func (g *RemoteMoodGateway) StreakState(ctx context.Context, userID string) (model.StreakState, error) {
	doc, err := g.store.Get(ctx, UserPath(userID))
	if err != nil {
		return model.StreakState{}, fmt.Errorf("fetching streak state: %w", err)
	}
	if doc == nil {
		return model.StreakState{}, nil
	}
	st, err := decodeStreakState(*doc)
	if err != nil {
		return model.StreakState{}, fmt.Errorf("decoding streak state: %w", err)
	}
	return st, nil
}

// SaveStreakState merges the streak fields into the user document.
func (g *RemoteMoodGateway) SaveStreakState(ctx context.Context, userID string, st model.StreakState) error {
	data := map[string]any{
		fieldStreak:    st.Count,
		fieldLastEntry: st.LastEntryDate,
	}
	if err := g.store.Set(ctx, UserPath(userID), data, true); err != nil {
		return fmt.Errorf("saving streak state: %w", err)
	}
	return nil
}

// SetReaction upserts the reactor's emoji on the given post. An empty emoji
// deletes the reaction document.
func (g *RemoteMoodGateway) SetReaction(ctx context.Context, authorID string, key DateKey, reactorID, emoji string, now time.Time) error {
	path := ReactionPath(authorID, key, reactorID)
	if emoji == "" {
		if err := g.store.Delete(ctx, path); err != nil {
			return fmt.Errorf("removing reaction: %w", err)
		}
		return nil
	}
	data := map[string]any{
		fieldEmoji:     emoji,
		fieldUpdatedAt: now,
	}
	if err := g.store.Set(ctx, path, data, false); err != nil {
		return fmt.Errorf("setting reaction: %w", err)
	}
	return nil
}

// Reactions returns the current reaction set on a post, one-shot.
func (g *RemoteMoodGateway) Reactions(ctx context.Context, authorID string, key DateKey) ([]model.Reaction, error) {
	docs, err := g.store.List(ctx, ReactionCollection(authorID, key))
	if err != nil {
		return nil, fmt.Errorf("listing reactions: %w", err)
	}
	reactions := make([]model.Reaction, 0, len(docs))
	for _, doc := range docs {
		r, err := decodeReaction(doc)
		if err != nil {
			continue
		}
		reactions = append(reactions, r)
	}
	return reactions, nil
}

// SubscribeReactions opens a live query over a post's reactions.
func (g *RemoteMoodGateway) SubscribeReactions(ctx context.Context, authorID string, key DateKey) (Subscription, error) {
	sub, err := g.store.Subscribe(ctx, ReactionCollection(authorID, key))
	if err != nil {
		return nil, fmt.Errorf("subscribing to reactions: %w", err)
	}
	return sub, nil
}
