package moodlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"moodlog-go/internal/model"
	"moodlog-go/internal/moodlog"
	"moodlog-go/internal/testutil"
)

// waitFor polls until cond passes or the deadline expires. Subscription
// deliveries are asynchronous, so assertions on cache state go through here.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// settle gives in-flight deliveries time to land before asserting that
// nothing changed.
func settle() { time.Sleep(50 * time.Millisecond) }

func newCache(t *testing.T, st moodlog.DocumentStore, windowDays int) (*moodlog.WindowedMoodCache, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	gateway := moodlog.NewRemoteMoodGateway(st)
	cache := moodlog.NewWindowedMoodCache(gateway, windowDays, time.UTC, clock, moodlog.NewNopLogger())
	t.Cleanup(cache.Detach)
	return cache, clock
}

func seedEntry(t *testing.T, st moodlog.DocumentStore, userID string, key moodlog.DateKey, mood model.Mood, created time.Time) {
	t.Helper()
	g := moodlog.NewRemoteMoodGateway(st)
	if err := g.UpsertMoodEntry(context.Background(), userID, key, &mood, nil, created); err != nil {
		t.Fatalf("seeding entry %s: %v", key, err)
	}
}

func TestWindowedMoodCache_Attach(t *testing.T) {
	ctx := context.Background()

	t.Run("initial snapshot contains only in-window entries", func(t *testing.T) {
		st := testutil.NewTestStore()
		cache, clock := newCache(t, st, 14)
		// Clock is 2024-03-10; the 14-day window is 2024-02-26..2024-03-10.
		now := clock.Now()

		seedEntry(t, st, "alice", "2024-03-10", model.MoodGood, now)
		seedEntry(t, st, "alice", "2024-02-26", model.MoodOkay, now)
		seedEntry(t, st, "alice", "2024-02-25", model.MoodBad, now) // one day too old

		if err := cache.Attach(ctx, "alice"); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}

		waitFor(t, func() bool { return len(cache.Snapshot().Entries) == 2 },
			"initial window snapshot")

		snap := cache.Snapshot()
		if snap.Start != "2024-02-26" || snap.End != "2024-03-10" {
			t.Errorf("window = [%s, %s], want [2024-02-26, 2024-03-10]", snap.Start, snap.End)
		}
		if _, ok := snap.Entries["2024-02-25"]; ok {
			t.Error("entry older than the window leaked into the snapshot")
		}
		if snap.Entries["2024-03-10"].Mood != model.MoodGood {
			t.Errorf("today's mood = %q, want good", snap.Entries["2024-03-10"].Mood)
		}
	})

	t.Run("attach to same user is a no-op", func(t *testing.T) {
		st := testutil.NewTestStore()
		cache, _ := newCache(t, st, 7)

		if err := cache.Attach(ctx, "alice"); err != nil {
			t.Fatalf("first Attach() error = %v", err)
		}
		if err := cache.Attach(ctx, "alice"); err != nil {
			t.Fatalf("second Attach() error = %v", err)
		}
		if got := cache.UserID(); got != "alice" {
			t.Errorf("UserID() = %q, want alice", got)
		}
	})

	t.Run("attach to different user swaps the session", func(t *testing.T) {
		st := testutil.NewTestStore()
		cache, clock := newCache(t, st, 7)
		now := clock.Now()

		seedEntry(t, st, "alice", "2024-03-10", model.MoodGood, now)
		seedEntry(t, st, "bob", "2024-03-10", model.MoodBad, now)

		if err := cache.Attach(ctx, "alice"); err != nil {
			t.Fatalf("Attach(alice) error = %v", err)
		}
		waitFor(t, func() bool { return len(cache.Snapshot().Entries) == 1 }, "alice's window")

		if err := cache.Attach(ctx, "bob"); err != nil {
			t.Fatalf("Attach(bob) error = %v", err)
		}
		waitFor(t, func() bool {
			snap := cache.Snapshot()
			return snap.UserID == "bob" && snap.Entries["2024-03-10"].Mood == model.MoodBad
		}, "bob's window")
	})

	t.Run("empty user id is rejected", func(t *testing.T) {
		st := testutil.NewTestStore()
		cache, _ := newCache(t, st, 7)

		if err := cache.Attach(ctx, ""); err == nil {
			t.Error("Attach(\"\") expected error")
		}
	})
}

func TestWindowedMoodCache_LiveUpdates(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore()
	cache, _ := newCache(t, st, 14)

	if err := cache.Attach(ctx, "alice"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool { return cache.Snapshot().Entries != nil }, "initial snapshot")

	mood := model.MoodGreat
	if err := cache.Save(ctx, "2024-03-10", &mood, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	waitFor(t, func() bool {
		return cache.Snapshot().Entries["2024-03-10"].Mood == model.MoodGreat
	}, "saved entry to appear")

	if err := cache.Delete(ctx, "2024-03-10"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	waitFor(t, func() bool {
		_, ok := cache.Snapshot().Entries["2024-03-10"]
		return !ok
	}, "deleted entry to disappear")
}

func TestWindowedMoodCache_Observer(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore()
	cache, _ := newCache(t, st, 14)

	snaps := make(chan moodlog.WindowSnapshot, 16)
	cache.SetObserver(func(s moodlog.WindowSnapshot) { snaps <- s })

	if err := cache.Attach(ctx, "alice"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	select {
	case s := <-snaps:
		if s.UserID != "alice" {
			t.Errorf("observed UserID = %q, want alice", s.UserID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not called for the initial snapshot")
	}

	mood := model.MoodOkay
	if err := cache.Save(ctx, "2024-03-09", &mood, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	waitFor(t, func() bool {
		for {
			select {
			case s := <-snaps:
				if s.Entries["2024-03-09"].Mood == model.MoodOkay {
					return true
				}
			default:
				return false
			}
		}
	}, "observer to see the saved entry")
}

func TestWindowedMoodCache_Detach(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore()
	cache, clock := newCache(t, st, 14)

	seedEntry(t, st, "alice", "2024-03-10", model.MoodGood, clock.Now())
	if err := cache.Attach(ctx, "alice"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool { return len(cache.Snapshot().Entries) == 1 }, "window to fill")

	cache.Detach()

	snap := cache.Snapshot()
	if snap.UserID != "" || len(snap.Entries) != 0 || snap.Start != "" || snap.End != "" {
		t.Errorf("snapshot after detach = %+v, want empty", snap)
	}

	// Idempotent.
	cache.Detach()
}

func TestWindowedMoodCache_StaleDeliveriesDropped(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore()
	cache, clock := newCache(t, st, 14)

	if err := cache.Attach(ctx, "alice"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool { return cache.Snapshot().UserID == "alice" }, "attach")

	cache.Detach()

	// A write that would have hit alice's window lands after sign-out;
	// the cache must stay empty.
	seedEntry(t, st, "alice", "2024-03-10", model.MoodGood, clock.Now())
	settle()

	snap := cache.Snapshot()
	if len(snap.Entries) != 0 || snap.UserID != "" {
		t.Errorf("stale delivery mutated a detached cache: %+v", snap)
	}
}

func TestWindowedMoodCache_Degraded(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore()
	cache, clock := newCache(t, st, 14)

	seedEntry(t, st, "alice", "2024-03-09", model.MoodGood, clock.Now())
	if err := cache.Attach(ctx, "alice"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	waitFor(t, func() bool { return len(cache.Snapshot().Entries) == 1 }, "window to fill")

	st.EmitError(moodlog.MoodCollection("alice"), errors.New("transport down"))
	waitFor(t, func() bool { return cache.Snapshot().Degraded }, "degraded flag")

	// Last known data stays readable while degraded.
	if got := cache.Snapshot().Entries["2024-03-09"].Mood; got != model.MoodGood {
		t.Errorf("entry while degraded = %q, want good", got)
	}

	// The next successful delivery clears the flag.
	seedEntry(t, st, "alice", "2024-03-10", model.MoodOkay, clock.Now())
	waitFor(t, func() bool {
		snap := cache.Snapshot()
		return !snap.Degraded && len(snap.Entries) == 2
	}, "recovery after successful delivery")
}

func TestWindowedMoodCache_SaveRequiresAttachedUser(t *testing.T) {
	st := testutil.NewTestStore()
	cache, _ := newCache(t, st, 14)

	mood := model.MoodGood
	if err := cache.Save(context.Background(), "2024-03-10", &mood, nil); err == nil {
		t.Error("Save() on detached cache expected error")
	}
	if err := cache.Delete(context.Background(), "2024-03-10"); err == nil {
		t.Error("Delete() on detached cache expected error")
	}
}
