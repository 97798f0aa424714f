package model

import "time"

// Mood is the user-selected mood tag for a day. The empty string means the
// entry has a note but no mood picked yet.
type Mood string

const (
	MoodNone  Mood = ""
	MoodGreat Mood = "great"
	MoodGood  Mood = "good"
	MoodOkay  Mood = "okay"
	MoodLow   Mood = "low"
	MoodBad   Mood = "bad"
)

// KnownMoods lists the selectable mood tags in display order.
var KnownMoods = []Mood{MoodGreat, MoodGood, MoodOkay, MoodLow, MoodBad}

// Valid reports whether m is empty or one of the known tags.
func (m Mood) Valid() bool {
	if m == MoodNone {
		return true
	}
	for _, k := range KnownMoods {
		if m == k {
			return true
		}
	}
	return false
}

// MoodEntry is one user's journal entry for one calendar day.
// Key is derived from CreatedAt's calendar date in the owner's time zone at
// creation time and never changes afterwards.
type MoodEntry struct {
	Key       string    // date key, YYYY-MM-DD
	Mood      Mood      // may be MoodNone
	Note      string    // may be empty
	CreatedAt time.Time // first save for this day
	UpdatedAt time.Time // last save; UpdatedAt >= CreatedAt
}

// Profile holds the public fields of a user document.
type Profile struct {
	UserID      string
	DisplayName string
	Username    string
}

// Friend is one friend relationship owned by a user.
type Friend struct {
	FriendID    string
	DisplayName string // cached at add time; the profile document is authoritative
	AddedAt     time.Time
}

// FriendEntry is one friend's slot in a social snapshot. Exactly one
// FriendEntry exists per friend relationship, whether or not the friend
// posted. Found=false means no entry was resolved for the date: either the
// friend did not post or their lookup failed; Mood, Note and PostedAt are
// zero values in that case.
type FriendEntry struct {
	FriendID    string
	DisplayName string
	Username    string
	Mood        Mood
	Note        string
	PostedAt    time.Time
	Found       bool
}

// SocialSnapshot is the resolved social view for one calendar date.
type SocialSnapshot struct {
	Date      string // date key, YYYY-MM-DD
	SelfEntry *MoodEntry
	Friends   []FriendEntry
}

// StreakState is the derived consecutive-day posting streak. It is always
// re-derivable from LastEntryDate and "today", so it is a cache of the rule,
// not an independent source of truth.
type StreakState struct {
	Count         int    // >= 0
	LastEntryDate string // date key of the most recent entry; empty if none
}

// Reaction is one reactor's emoji on one post. A reactor holds at most one
// active emoji per post; setting an empty emoji deletes the document.
type Reaction struct {
	ReactorID string
	Emoji     string
	UpdatedAt time.Time
}
