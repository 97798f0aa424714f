package moodlog

import (
	"fmt"
	"time"

	"moodlog-go/internal/model"
)

// Field names used in store documents.
const (
	fieldMood        = "mood"
	fieldNote        = "note"
	fieldCreatedAt   = "createdAt"
	fieldUpdatedAt   = "updatedAt"
	fieldDisplayName = "displayName"
	fieldUsername    = "username"
	fieldEmoji       = "emoji"
	fieldAddedAt     = "addedAt"
	fieldStreak      = "streakCount"
	fieldLastEntry   = "lastEntryDate"
)

// docString reads an optional string field. Absent fields decode as "".
func docString(data map[string]any, name string) (string, error) {
	v, ok := data[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", name, v)
	}
	return s, nil
}

// docTime reads an optional timestamp field. Backends hand timestamps back
// either as time.Time or as RFC 3339 strings (JSON round trip); both are
// accepted. Absent fields decode as the zero time.
func docTime(data map[string]any, name string) (time.Time, error) {
	v, ok := data[name]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("field %q: %w", name, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("field %q: expected timestamp, got %T", name, v)
	}
}

// docInt reads an optional integer field, widening from the numeric types a
// JSON round trip can produce.
func docInt(data map[string]any, name string) (int, error) {
	v, ok := data[name]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("field %q: expected number, got %T", name, v)
	}
}

// decodeMoodEntry decodes a dailyMoods document. The document key is the
// entry's date key; createdAt is required, updatedAt falls back to createdAt.
func decodeMoodEntry(doc Document) (model.MoodEntry, error) {
	key, err := ParseDateKey(doc.Key())
	if err != nil {
		return model.MoodEntry{}, err
	}

	moodStr, err := docString(doc.Data, fieldMood)
	if err != nil {
		return model.MoodEntry{}, err
	}
	mood := model.Mood(moodStr)
	if !mood.Valid() {
		return model.MoodEntry{}, fmt.Errorf("unknown mood tag %q", moodStr)
	}

	note, err := docString(doc.Data, fieldNote)
	if err != nil {
		return model.MoodEntry{}, err
	}

	createdAt, err := docTime(doc.Data, fieldCreatedAt)
	if err != nil {
		return model.MoodEntry{}, err
	}
	if createdAt.IsZero() {
		return model.MoodEntry{}, fmt.Errorf("missing createdAt")
	}

	updatedAt, err := docTime(doc.Data, fieldUpdatedAt)
	if err != nil {
		return model.MoodEntry{}, err
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return model.MoodEntry{
		Key:       string(key),
		Mood:      mood,
		Note:      note,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func encodeMoodEntry(e model.MoodEntry) map[string]any {
	return map[string]any{
		fieldMood:      string(e.Mood),
		fieldNote:      e.Note,
		fieldCreatedAt: e.CreatedAt,
		fieldUpdatedAt: e.UpdatedAt,
	}
}

func decodeProfile(doc Document) (model.Profile, error) {
	displayName, err := docString(doc.Data, fieldDisplayName)
	if err != nil {
		return model.Profile{}, err
	}
	username, err := docString(doc.Data, fieldUsername)
	if err != nil {
		return model.Profile{}, err
	}
	return model.Profile{
		UserID:      doc.Key(),
		DisplayName: displayName,
		Username:    username,
	}, nil
}

func decodeFriend(doc Document) (model.Friend, error) {
	displayName, err := docString(doc.Data, fieldDisplayName)
	if err != nil {
		return model.Friend{}, err
	}
	addedAt, err := docTime(doc.Data, fieldAddedAt)
	if err != nil {
		return model.Friend{}, err
	}
	return model.Friend{
		FriendID:    doc.Key(),
		DisplayName: displayName,
		AddedAt:     addedAt,
	}, nil
}

func decodeReaction(doc Document) (model.Reaction, error) {
	emoji, err := docString(doc.Data, fieldEmoji)
	if err != nil {
		return model.Reaction{}, err
	}
	if emoji == "" {
		return model.Reaction{}, fmt.Errorf("missing emoji")
	}
	updatedAt, err := docTime(doc.Data, fieldUpdatedAt)
	if err != nil {
		return model.Reaction{}, err
	}
	return model.Reaction{
		ReactorID: doc.Key(),
		Emoji:     emoji,
		UpdatedAt: updatedAt,
	}, nil
}

func decodeStreakState(doc Document) (model.StreakState, error) {
	count, err := docInt(doc.Data, fieldStreak)
	if err != nil {
		return model.StreakState{}, err
	}
	last, err := docString(doc.Data, fieldLastEntry)
	if err != nil {
		return model.StreakState{}, err
	}
	return model.StreakState{Count: count, LastEntryDate: last}, nil
}
