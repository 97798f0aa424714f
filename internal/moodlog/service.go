package moodlog

import (
	"context"
	"fmt"
	"time"

	"moodlog-go/internal/model"
)

// JournalService is the orchestration layer the presentation side talks to.
// It owns the windowed cache, the streak keeper, the social aggregator and
// a reaction stream, and keeps them consistent: saves write through the
// cache and advance the streak, session changes re-bind the cache.
type JournalService struct {
	gateway   *RemoteMoodGateway
	cache     *WindowedMoodCache
	streaks   *StreakKeeper
	social    *SocialAggregator
	reactions *ReactionStream
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	loc       *time.Location
}

// NewJournalService wires a service from its dependencies. loc is the
// owner's time zone; it defines entry date keys, the cache window and the
// streak day boundary.
func NewJournalService(store DocumentStore, windowDays int, loc *time.Location, clock Clock, idgen IDGenerator, logger Logger) *JournalService {
	gateway := NewRemoteMoodGateway(store)
	return &JournalService{
		gateway: gateway,
		cache:   NewWindowedMoodCache(gateway, windowDays, loc, clock, logger),
		streaks: NewStreakKeeper(gateway, loc, clock, logger),
		social:  NewSocialAggregator(gateway, loc, logger),
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		loc:     loc,
	}
}

// Bind attaches the cache to the session source's current user and keeps it
// in sync with session changes: sign-in attaches, sign-out detaches.
func (s *JournalService) Bind(ctx context.Context, src SessionSource) error {
	src.OnChange(func(userID string) {
		if userID == "" {
			s.cache.Detach()
			return
		}
		if err := s.cache.Attach(ctx, userID); err != nil {
			s.logger.Error("re-attaching cache on session change", "user", userID, "error", err)
		}
	})

	if userID := src.UserID(); userID != "" {
		if err := s.cache.Attach(ctx, userID); err != nil {
			return fmt.Errorf("binding session: %w", err)
		}
		s.reactions = NewReactionStream(s.gateway, userID, s.clock, s.logger)
	}
	return nil
}

// Cache exposes the windowed cache for observers and direct reads.
func (s *JournalService) Cache() *WindowedMoodCache { return s.cache }

// Today returns today's date key in the owner's time zone.
func (s *JournalService) Today() DateKey { return DateKeyOf(s.clock.Now(), s.loc) }

// SaveEntry upserts the entry for key. A nil mood or note preserves the
// prior value. When key is today, the streak advances; backfilled entries
// for past days leave the streak alone.
func (s *JournalService) SaveEntry(ctx context.Context, key DateKey, mood *model.Mood, note *string) (model.StreakState, error) {
	if err := s.cache.Save(ctx, key, mood, note); err != nil {
		return model.StreakState{}, err
	}
	if key != s.Today() {
		return s.streaks.Current(ctx, s.cache.UserID())
	}
	st, err := s.streaks.RecordEntry(ctx, s.cache.UserID())
	if err != nil {
		return model.StreakState{}, fmt.Errorf("updating streak: %w", err)
	}
	return st, nil
}

// DeleteEntry removes the entry for key.
func (s *JournalService) DeleteEntry(ctx context.Context, key DateKey) error {
	return s.cache.Delete(ctx, key)
}

// Window returns the current cached window snapshot.
func (s *JournalService) Window() WindowSnapshot { return s.cache.Snapshot() }

// Social resolves the social view for date.
func (s *JournalService) Social(ctx context.Context, date DateKey) (model.SocialSnapshot, error) {
	userID := s.cache.UserID()
	if userID == "" {
		return model.SocialSnapshot{}, fmt.Errorf("social: no user attached")
	}
	return s.social.Resolve(ctx, date, userID)
}

// Streak returns the persisted streak state after a passive check; lost is
// true when this check detected the lapse.
func (s *JournalService) Streak(ctx context.Context) (st model.StreakState, lost bool, err error) {
	userID := s.cache.UserID()
	if userID == "" {
		return model.StreakState{}, false, fmt.Errorf("streak: no user attached")
	}
	return s.streaks.Refresh(ctx, userID)
}

// Reactions returns the service's reaction stream for the signed-in user.
func (s *JournalService) Reactions() (*ReactionStream, error) {
	if s.reactions == nil {
		return nil, fmt.Errorf("reactions: no user attached")
	}
	return s.reactions, nil
}

// React sets the signed-in user's emoji on a friend's post without opening
// a stream, for one-shot callers.
func (s *JournalService) React(ctx context.Context, authorID string, date DateKey, emoji string) error {
	userID := s.cache.UserID()
	if userID == "" {
		return fmt.Errorf("react: no user attached")
	}
	return s.gateway.SetReaction(ctx, authorID, date, userID, emoji, s.clock.Now())
}

// ListReactions returns the current reaction set on a post, one-shot.
func (s *JournalService) ListReactions(ctx context.Context, authorID string, date DateKey) ([]model.Reaction, error) {
	return s.gateway.Reactions(ctx, authorID, date)
}

// Friends returns the signed-in user's friend list.
func (s *JournalService) Friends(ctx context.Context) ([]model.Friend, error) {
	userID := s.cache.UserID()
	if userID == "" {
		return nil, fmt.Errorf("friends: no user attached")
	}
	return s.gateway.Friends(ctx, userID)
}

// AddFriend records a friend relationship for the signed-in user.
func (s *JournalService) AddFriend(ctx context.Context, friendID, displayName string) error {
	userID := s.cache.UserID()
	if userID == "" {
		return fmt.Errorf("add friend: no user attached")
	}
	if friendID == userID {
		return fmt.Errorf("add friend: cannot befriend yourself")
	}
	return s.gateway.AddFriend(ctx, userID, friendID, displayName, s.clock.Now())
}

// RemoveFriend drops a friend relationship for the signed-in user.
func (s *JournalService) RemoveFriend(ctx context.Context, friendID string) error {
	userID := s.cache.UserID()
	if userID == "" {
		return fmt.Errorf("remove friend: no user attached")
	}
	return s.gateway.RemoveFriend(ctx, userID, friendID)
}

// SetProfile upserts the signed-in user's public profile fields.
func (s *JournalService) SetProfile(ctx context.Context, displayName, username string) error {
	userID := s.cache.UserID()
	if userID == "" {
		return fmt.Errorf("set profile: no user attached")
	}
	return s.gateway.UpsertProfile(ctx, model.Profile{
		UserID:      userID,
		DisplayName: displayName,
		Username:    username,
	})
}

// Close detaches the cache and stops any open reaction stream.
func (s *JournalService) Close() {
	if s.reactions != nil {
		s.reactions.StopListening()
	}
	s.cache.Detach()
}
