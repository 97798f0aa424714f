package moodlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moodlog-go/internal/model"
)

// WindowSnapshot is the published state of the cache: the signed-in user's
// entries for the trailing window of calendar days. The map is a copy; the
// caller may keep it.
type WindowSnapshot struct {
	UserID   string
	Start    DateKey
	End      DateKey
	Entries  map[DateKey]model.MoodEntry
	Degraded bool
}

// WindowedMoodCache keeps a live mapping from date key to mood entry for
// the trailing N days of the signed-in user, fed by one long-lived store
// subscription. The entry map is replaced wholesale on every delivered
// snapshot, never patched in place, so readers always see a consistent
// window. Attach and Detach are idempotent and safe to call from any
// goroutine; deliveries for a detached session are dropped by generation
// comparison, never by relying on channel-close timing.
type WindowedMoodCache struct {
	gateway    *RemoteMoodGateway
	logger     Logger
	clock      Clock
	loc        *time.Location
	windowDays int

	mu         sync.Mutex
	userID     string
	generation uint64
	sub        Subscription
	start, end DateKey
	entries    map[DateKey]model.MoodEntry
	degraded   bool
	observer   func(WindowSnapshot)
}

// NewWindowedMoodCache creates a detached cache. windowDays is the number of
// consecutive calendar days kept, ending today in loc.
func NewWindowedMoodCache(gateway *RemoteMoodGateway, windowDays int, loc *time.Location, clock Clock, logger Logger) *WindowedMoodCache {
	if windowDays < 1 {
		windowDays = 1
	}
	return &WindowedMoodCache{
		gateway:    gateway,
		logger:     logger,
		clock:      clock,
		loc:        loc,
		windowDays: windowDays,
		entries:    map[DateKey]model.MoodEntry{},
	}
}

// SetObserver registers the single observer notified after each installed
// snapshot. Set before Attach.
func (c *WindowedMoodCache) SetObserver(fn func(WindowSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// Attach binds the cache to userID and opens its subscription. Attaching to
// the already-attached user is a no-op; attaching to a different user
// detaches the previous session first.
func (c *WindowedMoodCache) Attach(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("attach: empty user id")
	}

	c.mu.Lock()
	if c.userID == userID {
		c.mu.Unlock()
		return nil
	}
	c.detachLocked()

	end := DateKeyOf(c.clock.Now(), c.loc)
	start := end.AddDays(-(c.windowDays - 1))

	c.userID = userID
	c.start, c.end = start, end
	gen := c.generation
	c.mu.Unlock()

	sub, err := c.gateway.SubscribeWindow(ctx, userID, start, end)
	if err != nil {
		c.mu.Lock()
		if c.generation == gen && c.userID == userID {
			c.userID = ""
			c.start, c.end = "", ""
		}
		c.mu.Unlock()
		return fmt.Errorf("attaching cache: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		// Detached (or re-attached) while the subscribe call was in
		// flight; this subscription belongs to a dead session.
		c.mu.Unlock()
		sub.Cancel()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	go c.consume(gen, userID, sub)

	c.logger.Info("mood cache attached", "user", userID, "window_start", start, "window_end", end)
	return nil
}

// Detach cancels the subscription, clears the entry map and resets the
// window. Idempotent; must be called on sign-out.
func (c *WindowedMoodCache) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
}

func (c *WindowedMoodCache) detachLocked() {
	c.generation++
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
	if c.userID != "" {
		c.logger.Info("mood cache detached", "user", c.userID)
	}
	c.userID = ""
	c.start, c.end = "", ""
	c.entries = map[DateKey]model.MoodEntry{}
	c.degraded = false
}

// consume drains one subscription. gen pins the session the subscription
// belongs to: a delivery races Detach/Attach only up to the generation
// check, after which it is dropped.
func (c *WindowedMoodCache) consume(gen uint64, userID string, sub Subscription) {
	for snap := range sub.Snapshots() {
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return
		}

		if snap.Err != nil {
			c.degraded = true
			c.mu.Unlock()
			c.logger.Warn("mood window delivery failed", "user", userID, "error", snap.Err)
			continue
		}

		entries := make(map[DateKey]model.MoodEntry, len(snap.Docs))
		for _, doc := range snap.Docs {
			entry, err := decodeMoodEntry(doc)
			if err != nil {
				c.logger.Warn("skipping undecodable mood document", "path", doc.Path, "error", err)
				continue
			}
			key := DateKey(entry.Key)
			if key.Before(c.start) || c.end.Before(key) {
				continue
			}
			entries[key] = entry
		}
		c.entries = entries
		c.degraded = false
		obs := c.observer
		published := c.snapshotLocked()
		c.mu.Unlock()

		if obs != nil {
			obs(published)
		}
	}
}

// Snapshot returns a copy of the current window state.
func (c *WindowedMoodCache) Snapshot() WindowSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *WindowedMoodCache) snapshotLocked() WindowSnapshot {
	entries := make(map[DateKey]model.MoodEntry, len(c.entries))
	for k, v := range c.entries {
		entries[k] = v
	}
	return WindowSnapshot{
		UserID:   c.userID,
		Start:    c.start,
		End:      c.end,
		Entries:  entries,
		Degraded: c.degraded,
	}
}

// UserID returns the attached user id, or "" when detached.
func (c *WindowedMoodCache) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Save upserts the attached user's entry for key, writing through to the
// store. The in-memory map is updated by the subscription's next snapshot,
// not optimistically: treat Save as fire-and-confirm.
func (c *WindowedMoodCache) Save(ctx context.Context, key DateKey, mood *model.Mood, note *string) error {
	userID := c.UserID()
	if userID == "" {
		return fmt.Errorf("save: no user attached")
	}
	return c.gateway.UpsertMoodEntry(ctx, userID, key, mood, note, c.clock.Now())
}

// Delete removes the attached user's entry for key from the store. The
// subscription drops it from the window on its next snapshot.
func (c *WindowedMoodCache) Delete(ctx context.Context, key DateKey) error {
	userID := c.UserID()
	if userID == "" {
		return fmt.Errorf("delete: no user attached")
	}
	return c.gateway.DeleteMoodEntry(ctx, userID, key)
}
