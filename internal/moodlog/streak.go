package moodlog

import (
	"context"
	"fmt"
	"time"

	"moodlog-go/internal/model"
)

// AdvanceOnEntry returns the streak state after an entry is recorded for
// today. Saving twice on the same day does not double-increment: the
// lastEntryDate==today branch leaves the state unchanged.
func AdvanceOnEntry(st model.StreakState, today DateKey) model.StreakState {
	switch st.LastEntryDate {
	case string(today):
		return st
	case string(today.AddDays(-1)):
		return model.StreakState{Count: st.Count + 1, LastEntryDate: string(today)}
	default:
		// First entry ever, or a gap of two or more days.
		return model.StreakState{Count: 1, LastEntryDate: string(today)}
	}
}

// CheckAtRest evaluates the streak without a new entry (app foreground).
// A streak whose last entry is neither today nor yesterday is lost: the
// count resets to 0 and lost is true. Because the reset persists, the lost
// signal fires at most once per lapse.
func CheckAtRest(st model.StreakState, today DateKey) (next model.StreakState, lost bool) {
	if st.Count == 0 {
		return st, false
	}
	if st.LastEntryDate == string(today) || st.LastEntryDate == string(today.AddDays(-1)) {
		return st, false
	}
	return model.StreakState{Count: 0, LastEntryDate: st.LastEntryDate}, true
}

// StreakKeeper is the thin persistence adapter around the pure streak
// transitions: it loads (count, lastEntryDate, today), applies one
// transition and persists the result onto the user document.
type StreakKeeper struct {
	gateway *RemoteMoodGateway
	clock   Clock
	loc     *time.Location
	logger  Logger
}

func NewStreakKeeper(gateway *RemoteMoodGateway, loc *time.Location, clock Clock, logger Logger) *StreakKeeper {
	return &StreakKeeper{gateway: gateway, clock: clock, loc: loc, logger: logger}
}

// Current returns the persisted streak state without applying a transition.
func (k *StreakKeeper) Current(ctx context.Context, userID string) (model.StreakState, error) {
	return k.gateway.StreakState(ctx, userID)
}

// RecordEntry applies the new-entry transition for today and persists the
// result. Call it whenever a save lands on today's entry; it is idempotent
// within a day.
func (k *StreakKeeper) RecordEntry(ctx context.Context, userID string) (model.StreakState, error) {
	st, err := k.gateway.StreakState(ctx, userID)
	if err != nil {
		return model.StreakState{}, err
	}

	today := DateKeyOf(k.clock.Now(), k.loc)
	next := AdvanceOnEntry(st, today)
	if next == st {
		return st, nil
	}

	if err := k.gateway.SaveStreakState(ctx, userID, next); err != nil {
		return model.StreakState{}, fmt.Errorf("persisting streak: %w", err)
	}
	k.logger.Debug("streak advanced", "user", userID, "count", next.Count)
	return next, nil
}

// Refresh applies the passive check and persists a reset when the streak
// lapsed. lost is true exactly once per lapse.
func (k *StreakKeeper) Refresh(ctx context.Context, userID string) (st model.StreakState, lost bool, err error) {
	st, err = k.gateway.StreakState(ctx, userID)
	if err != nil {
		return model.StreakState{}, false, err
	}

	today := DateKeyOf(k.clock.Now(), k.loc)
	next, lost := CheckAtRest(st, today)
	if !lost {
		return st, false, nil
	}

	if err := k.gateway.SaveStreakState(ctx, userID, next); err != nil {
		return model.StreakState{}, false, fmt.Errorf("persisting streak reset: %w", err)
	}
	k.logger.Info("streak lost", "user", userID, "last_entry", st.LastEntryDate)
	return next, true, nil
}
