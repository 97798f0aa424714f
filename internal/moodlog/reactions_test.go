package moodlog_test

import (
	"context"
	"sync"
	"testing"

	"moodlog-go/internal/model"
	"moodlog-go/internal/moodlog"
	"moodlog-go/internal/testutil"
)

// reactionLog collects deliveries from a ReactionStream callback.
type reactionLog struct {
	mu     sync.Mutex
	latest []model.Reaction
	seen   bool
}

func (l *reactionLog) record(rs []model.Reaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = rs
	l.seen = true
}

func (l *reactionLog) snapshot() ([]model.Reaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.seen
}

func newReactionStream(t *testing.T, selfID string) (*moodlog.ReactionStream, *moodlog.RemoteMoodGateway) {
	t.Helper()
	st := testutil.NewTestStore()
	gateway := moodlog.NewRemoteMoodGateway(st)
	stream := moodlog.NewReactionStream(gateway, selfID, testutil.FixedClock(), moodlog.NewNopLogger())
	t.Cleanup(stream.StopListening)
	return stream, gateway
}

func TestReactionStream_ListenAndReact(t *testing.T) {
	ctx := context.Background()
	stream, _ := newReactionStream(t, "alice")
	var log reactionLog

	if err := stream.Listen(ctx, "bob", "2024-03-10", log.record); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	waitFor(t, func() bool { _, seen := log.snapshot(); return seen }, "initial delivery")

	rs, _ := log.snapshot()
	if len(rs) != 0 {
		t.Errorf("initial reactions = %+v, want none", rs)
	}

	if err := stream.React(ctx, "❤️"); err != nil {
		t.Fatalf("React() error = %v", err)
	}
	waitFor(t, func() bool {
		rs, _ := log.snapshot()
		return len(rs) == 1 && rs[0].ReactorID == "alice" && rs[0].Emoji == "❤️"
	}, "reaction to appear")

	// Changing the emoji replaces, not duplicates.
	if err := stream.React(ctx, "🎉"); err != nil {
		t.Fatalf("React() error = %v", err)
	}
	waitFor(t, func() bool {
		rs, _ := log.snapshot()
		return len(rs) == 1 && rs[0].Emoji == "🎉"
	}, "reaction to be replaced")

	// Empty emoji removes it.
	if err := stream.React(ctx, ""); err != nil {
		t.Fatalf("React(\"\") error = %v", err)
	}
	waitFor(t, func() bool {
		rs, _ := log.snapshot()
		return len(rs) == 0
	}, "reaction to disappear")
}

func TestReactionStream_RemovalRoundTrip(t *testing.T) {
	ctx := context.Background()
	stream, gateway := newReactionStream(t, "alice")

	if err := stream.Listen(ctx, "bob", "2024-03-10", func([]model.Reaction) {}); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	if err := stream.React(ctx, "❤️"); err != nil {
		t.Fatalf("React() error = %v", err)
	}
	if err := stream.React(ctx, ""); err != nil {
		t.Fatalf("React(\"\") error = %v", err)
	}

	// React then unreact leaves no document behind.
	rs, err := gateway.Reactions(ctx, "bob", "2024-03-10")
	if err != nil {
		t.Fatalf("Reactions() error = %v", err)
	}
	if len(rs) != 0 {
		t.Errorf("reactions after round trip = %+v, want none", rs)
	}
}

func TestReactionStream_ReListenTearsDownPrior(t *testing.T) {
	ctx := context.Background()
	stream, gateway := newReactionStream(t, "alice")

	var first, second reactionLog
	if err := stream.Listen(ctx, "bob", "2024-03-10", first.record); err != nil {
		t.Fatalf("first Listen() error = %v", err)
	}
	waitFor(t, func() bool { _, seen := first.snapshot(); return seen }, "first initial delivery")

	if err := stream.Listen(ctx, "carol", "2024-03-10", second.record); err != nil {
		t.Fatalf("second Listen() error = %v", err)
	}
	waitFor(t, func() bool { _, seen := second.snapshot(); return seen }, "second initial delivery")

	// A change on the first post must not reach the superseded callback.
	firstBefore, _ := first.snapshot()
	err := gateway.SetReaction(ctx, "bob", "2024-03-10", "dave", "👍", testutil.FixedClock().Now())
	if err != nil {
		t.Fatalf("SetReaction() error = %v", err)
	}
	settle()
	firstAfter, _ := first.snapshot()
	if len(firstAfter) != len(firstBefore) {
		t.Error("superseded listener still received deliveries")
	}

	// React now targets the second post.
	if err := stream.React(ctx, "❤️"); err != nil {
		t.Fatalf("React() error = %v", err)
	}
	rs, err := gateway.Reactions(ctx, "carol", "2024-03-10")
	if err != nil {
		t.Fatalf("Reactions() error = %v", err)
	}
	if len(rs) != 1 {
		t.Errorf("reactions on carol's post = %+v, want alice's one", rs)
	}
}

func TestReactionStream_ReactWithoutListen(t *testing.T) {
	stream, _ := newReactionStream(t, "alice")

	if err := stream.React(context.Background(), "❤️"); err == nil {
		t.Error("React() without Listen() expected error")
	}
}

func TestReactionStream_StopListening(t *testing.T) {
	ctx := context.Background()
	stream, gateway := newReactionStream(t, "alice")
	var log reactionLog

	if err := stream.Listen(ctx, "bob", "2024-03-10", log.record); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	waitFor(t, func() bool { _, seen := log.snapshot(); return seen }, "initial delivery")

	stream.StopListening()

	err := gateway.SetReaction(ctx, "bob", "2024-03-10", "dave", "👍", testutil.FixedClock().Now())
	if err != nil {
		t.Fatalf("SetReaction() error = %v", err)
	}
	settle()

	rs, _ := log.snapshot()
	if len(rs) != 0 {
		t.Errorf("stopped listener received deliveries: %+v", rs)
	}

	// Idempotent.
	stream.StopListening()
}
