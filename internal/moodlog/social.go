package moodlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moodlog-go/internal/model"
)

// SocialAggregator resolves the social view for one calendar date: the
// requester's own entry plus one slot per friend. It holds no state across
// calls. Per-friend lookups run concurrently and fail independently; one
// unreachable friend never truncates the rest of the snapshot.
type SocialAggregator struct {
	gateway *RemoteMoodGateway
	logger  Logger
	loc     *time.Location // viewer's location; defines the day boundary
}

func NewSocialAggregator(gateway *RemoteMoodGateway, loc *time.Location, logger Logger) *SocialAggregator {
	return &SocialAggregator{gateway: gateway, logger: logger, loc: loc}
}

// Resolve builds the snapshot for date as seen by requesterID. date is the
// viewer's local calendar day; friends' entries are matched by the viewer's
// UTC day range rather than by document key, because each friend's keys
// were assigned in that friend's own time zone.
//
// Failure policy: inability to fetch the friend list or the requester's own
// entry fails the whole call; a single friend's failed lookup is recorded
// as Found=false on that slot only. An empty result is a valid outcome.
func (a *SocialAggregator) Resolve(ctx context.Context, date DateKey, requesterID string) (model.SocialSnapshot, error) {
	friends, err := a.gateway.Friends(ctx, requesterID)
	if err != nil {
		return model.SocialSnapshot{}, fmt.Errorf("resolving social view: %w", err)
	}

	self, err := a.gateway.MoodEntry(ctx, requesterID, date)
	if err != nil {
		return model.SocialSnapshot{}, fmt.Errorf("resolving own entry: %w", err)
	}

	start, end := date.DayRangeUTC(a.loc)

	// Scatter/gather: one goroutine per friend, joined before returning.
	// Slots are pre-sized so each goroutine writes only its own index.
	results := make([]model.FriendEntry, len(friends))
	var wg sync.WaitGroup
	for i, f := range friends {
		wg.Add(1)
		go func(i int, f model.Friend) {
			defer wg.Done()
			results[i] = a.resolveFriend(ctx, f, start, end)
		}(i, f)
	}
	wg.Wait()

	return model.SocialSnapshot{
		Date:      string(date),
		SelfEntry: self,
		Friends:   results,
	}, nil
}

// resolveFriend performs one friend's mood+profile fetch pair. Any failure
// yields the Found=false slot; errors never escape to the join.
func (a *SocialAggregator) resolveFriend(ctx context.Context, f model.Friend, start, end time.Time) model.FriendEntry {
	fe := model.FriendEntry{FriendID: f.FriendID, DisplayName: f.DisplayName}

	entry, err := a.gateway.MoodEntryByCreatedRange(ctx, f.FriendID, start, end)
	if err != nil {
		a.logger.Warn("friend mood lookup failed", "friend", f.FriendID, "error", err)
		return fe
	}
	if entry == nil {
		// No post for this date; a valid outcome, distinct from failure
		// only in the log.
		return fe
	}

	profile, err := a.gateway.Profile(ctx, f.FriendID)
	if err != nil {
		a.logger.Warn("friend profile lookup failed", "friend", f.FriendID, "error", err)
		return fe
	}
	if profile != nil {
		if profile.DisplayName != "" {
			fe.DisplayName = profile.DisplayName
		}
		fe.Username = profile.Username
	}

	fe.Mood = entry.Mood
	fe.Note = entry.Note
	fe.PostedAt = entry.CreatedAt
	fe.Found = true
	return fe
}
