package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"moodlog-go/internal/moodlog"
	"moodlog-go/internal/store"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()

	t.Run("get absent document returns nil nil", func(t *testing.T) {
		s := store.NewMemoryStore()

		doc, err := s.Get(ctx, "users/alice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if doc != nil {
			t.Errorf("Get() = %+v, want nil", doc)
		}
	})

	t.Run("set then get round trips", func(t *testing.T) {
		s := store.NewMemoryStore()

		err := s.Set(ctx, "users/alice", map[string]any{"displayName": "Alice"}, false)
		if err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		doc, err := s.Get(ctx, "users/alice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if doc == nil || doc.Data["displayName"] != "Alice" {
			t.Errorf("Get() = %+v", doc)
		}
	})

	t.Run("replace set drops unrelated fields", func(t *testing.T) {
		s := store.NewMemoryStore()

		s.Set(ctx, "users/alice", map[string]any{"displayName": "Alice", "username": "al"}, false)
		s.Set(ctx, "users/alice", map[string]any{"displayName": "Alicia"}, false)

		doc, err := s.Get(ctx, "users/alice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if _, ok := doc.Data["username"]; ok {
			t.Error("replace write kept a field it should have dropped")
		}
	})

	t.Run("merge set keeps unrelated fields", func(t *testing.T) {
		s := store.NewMemoryStore()

		s.Set(ctx, "users/alice", map[string]any{"displayName": "Alice", "streakCount": 3}, false)
		s.Set(ctx, "users/alice", map[string]any{"displayName": "Alicia"}, true)

		doc, err := s.Get(ctx, "users/alice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if doc.Data["displayName"] != "Alicia" {
			t.Errorf("displayName = %v, want Alicia", doc.Data["displayName"])
		}
		if doc.Data["streakCount"] != 3 {
			t.Errorf("streakCount = %v, want preserved 3", doc.Data["streakCount"])
		}
	})

	t.Run("returned data is a copy", func(t *testing.T) {
		s := store.NewMemoryStore()

		s.Set(ctx, "users/alice", map[string]any{"displayName": "Alice"}, false)
		doc, _ := s.Get(ctx, "users/alice")
		doc.Data["displayName"] = "mutated"

		doc2, _ := s.Get(ctx, "users/alice")
		if doc2.Data["displayName"] != "Alice" {
			t.Error("mutating a returned document leaked into the store")
		}
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	s.Set(ctx, "users/alice", map[string]any{"displayName": "Alice"}, false)
	if err := s.Delete(ctx, "users/alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	doc, err := s.Get(ctx, "users/alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc != nil {
		t.Errorf("Get() after delete = %+v, want nil", doc)
	}

	// Deleting an absent document succeeds.
	if err := s.Delete(ctx, "users/alice"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	s.Set(ctx, "users/alice/dailyMoods/2024-03-10", map[string]any{"mood": "good"}, false)
	s.Set(ctx, "users/alice/dailyMoods/2024-03-08", map[string]any{"mood": "low"}, false)
	s.Set(ctx, "users/alice/friends/bob", map[string]any{"displayName": "Bob"}, false)
	// A nested subcollection document is not a direct child.
	s.Set(ctx, "users/alice/dailyMoods/2024-03-10/reactions/bob", map[string]any{"emoji": "x"}, false)

	docs, err := s.List(ctx, "users/alice/dailyMoods")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].Path != "users/alice/dailyMoods/2024-03-08" {
		t.Errorf("docs[0].Path = %q, want the earlier key first", docs[0].Path)
	}
}

func TestMemoryStore_QueryCreatedRange(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	at := func(h int) time.Time { return time.Date(2024, 3, 10, h, 0, 0, 0, time.UTC) }
	s.Set(ctx, "users/bob/dailyMoods/2024-03-10", map[string]any{"createdAt": at(8)}, false)
	s.Set(ctx, "users/bob/dailyMoods/2024-03-09", map[string]any{"createdAt": at(8).AddDate(0, 0, -1)}, false)
	// String timestamps count too.
	s.Set(ctx, "users/bob/dailyMoods/2024-03-11",
		map[string]any{"createdAt": at(8).AddDate(0, 0, 1).Format(time.RFC3339Nano)}, false)

	docs, err := s.QueryCreatedRange(ctx, "users/bob/dailyMoods", at(0), at(0).AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("QueryCreatedRange() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "users/bob/dailyMoods/2024-03-10" {
		t.Errorf("docs = %+v, want only the 03-10 entry", docs)
	}

	docs, err = s.QueryCreatedRange(ctx, "users/bob/dailyMoods", at(0).AddDate(0, 0, 1), at(0).AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("QueryCreatedRange() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "users/bob/dailyMoods/2024-03-11" {
		t.Errorf("docs = %+v, want only the string-timestamped entry", docs)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()

	recv := func(t *testing.T, sub moodlog.Subscription) moodlog.QuerySnapshot {
		t.Helper()
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				t.Fatal("snapshot channel closed unexpectedly")
			}
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
			return moodlog.QuerySnapshot{}
		}
	}

	t.Run("initial snapshot then updates", func(t *testing.T) {
		s := store.NewMemoryStore()
		s.Set(ctx, "users/alice/dailyMoods/2024-03-09", map[string]any{"mood": "good"}, false)

		sub, err := s.Subscribe(ctx, "users/alice/dailyMoods")
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Cancel()

		snap := recv(t, sub)
		if len(snap.Docs) != 1 {
			t.Fatalf("initial snapshot docs = %d, want 1", len(snap.Docs))
		}

		s.Set(ctx, "users/alice/dailyMoods/2024-03-10", map[string]any{"mood": "low"}, false)
		snap = recv(t, sub)
		if len(snap.Docs) != 2 {
			t.Errorf("snapshot after write docs = %d, want 2", len(snap.Docs))
		}

		s.Delete(ctx, "users/alice/dailyMoods/2024-03-09")
		snap = recv(t, sub)
		if len(snap.Docs) != 1 {
			t.Errorf("snapshot after delete docs = %d, want 1", len(snap.Docs))
		}
	})

	t.Run("range bounds filter keys", func(t *testing.T) {
		s := store.NewMemoryStore()

		sub, err := s.SubscribeRange(ctx, "users/alice/dailyMoods", "2024-03-01", "2024-03-31")
		if err != nil {
			t.Fatalf("SubscribeRange() error = %v", err)
		}
		defer sub.Cancel()
		recv(t, sub) // initial, empty

		// Outside the range: no delivery for this write alone.
		s.Set(ctx, "users/alice/dailyMoods/2024-02-28", map[string]any{"mood": "good"}, false)
		s.Set(ctx, "users/alice/dailyMoods/2024-03-10", map[string]any{"mood": "low"}, false)

		snap := recv(t, sub)
		if len(snap.Docs) != 1 || snap.Docs[0].Path != "users/alice/dailyMoods/2024-03-10" {
			t.Errorf("snapshot docs = %+v, want only the in-range key", snap.Docs)
		}
	})

	t.Run("slow consumer coalesces to the newest state", func(t *testing.T) {
		s := store.NewMemoryStore()

		sub, err := s.Subscribe(ctx, "users/alice/dailyMoods")
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Cancel()
		recv(t, sub) // initial

		// Burst of writes while the consumer is not reading. Deliveries may
		// coalesce, but the last one observed must be the final state.
		for i := 0; i < 20; i++ {
			s.Set(ctx, "users/alice/dailyMoods/2024-03-10", map[string]any{"seq": i}, false)
		}

		deadline := time.After(2 * time.Second)
		for {
			select {
			case snap := <-sub.Snapshots():
				if len(snap.Docs) == 1 && snap.Docs[0].Data["seq"] == 19 {
					return
				}
			case <-deadline:
				t.Fatal("never observed the final state")
			}
		}
	})

	t.Run("cancel closes the channel and is idempotent", func(t *testing.T) {
		s := store.NewMemoryStore()

		sub, err := s.Subscribe(ctx, "users/alice/dailyMoods")
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		sub.Cancel()
		sub.Cancel()

		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, ok := <-sub.Snapshots():
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("snapshot channel not closed after Cancel")
			}
		}
	})

	t.Run("EmitError delivers a transport error snapshot", func(t *testing.T) {
		s := store.NewMemoryStore()

		sub, err := s.Subscribe(ctx, "users/alice/dailyMoods")
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Cancel()
		recv(t, sub) // initial

		s.EmitError("users/alice/dailyMoods", errors.New("transport down"))
		snap := recv(t, sub)
		if snap.Err == nil {
			t.Error("snapshot.Err = nil, want injected transport error")
		}
	})
}

func TestMemoryStore_RunTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("reads observe buffered writes", func(t *testing.T) {
		s := store.NewMemoryStore()

		err := s.RunTransaction(ctx, func(tx moodlog.Txn) error {
			tx.Set("users/alice", map[string]any{"displayName": "Alice"}, false)
			doc, err := tx.Get("users/alice")
			if err != nil {
				return err
			}
			if doc == nil || doc.Data["displayName"] != "Alice" {
				t.Errorf("in-transaction read = %+v, want buffered write", doc)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("RunTransaction() error = %v", err)
		}
	})

	t.Run("returned error discards all writes", func(t *testing.T) {
		s := store.NewMemoryStore()

		err := s.RunTransaction(ctx, func(tx moodlog.Txn) error {
			tx.Set("users/alice", map[string]any{"displayName": "Alice"}, false)
			return errors.New("abort")
		})
		if err == nil {
			t.Fatal("RunTransaction() expected propagated error")
		}

		doc, err := s.Get(ctx, "users/alice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if doc != nil {
			t.Errorf("aborted transaction left a write behind: %+v", doc)
		}
	})

	t.Run("commit applies writes and deletes atomically", func(t *testing.T) {
		s := store.NewMemoryStore()
		s.Set(ctx, "users/old", map[string]any{"displayName": "Old"}, false)

		err := s.RunTransaction(ctx, func(tx moodlog.Txn) error {
			tx.Set("users/new", map[string]any{"displayName": "New"}, false)
			tx.Delete("users/old")
			return nil
		})
		if err != nil {
			t.Fatalf("RunTransaction() error = %v", err)
		}

		if doc, _ := s.Get(ctx, "users/new"); doc == nil {
			t.Error("committed write missing")
		}
		if doc, _ := s.Get(ctx, "users/old"); doc != nil {
			t.Error("committed delete did not apply")
		}
	})
}

func TestMemoryStore_Fail(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	injected := errors.New("injected")

	s.Set(ctx, "users/alice", map[string]any{"displayName": "Alice"}, false)
	s.Fail("users/alice", injected)

	if _, err := s.Get(ctx, "users/alice"); !errors.Is(err, injected) {
		t.Errorf("Get() error = %v, want injected", err)
	}
	if err := s.Set(ctx, "users/alice", nil, false); !errors.Is(err, injected) {
		t.Errorf("Set() error = %v, want injected", err)
	}

	// Other paths are unaffected.
	if _, err := s.Get(ctx, "users/bob"); err != nil {
		t.Errorf("Get(other) error = %v, want nil", err)
	}

	// Clearing restores the path.
	s.Fail("users/alice", nil)
	if _, err := s.Get(ctx, "users/alice"); err != nil {
		t.Errorf("Get() after clear error = %v", err)
	}
}
