package moodlog

import (
	"context"
	"strings"
	"time"
)

// Document is one stored record: a hierarchical path plus a schemaless field
// map. Field values survive a round trip through the backend in a possibly
// widened form (times may come back as RFC 3339 strings), so decoding always
// goes through the codec helpers rather than direct type assertions.
type Document struct {
	Path string
	Data map[string]any
}

// Key returns the last path segment, which is the document's id within its
// collection (a date key, friend id or reactor id).
func (d Document) Key() string {
	if i := strings.LastIndexByte(d.Path, '/'); i >= 0 {
		return d.Path[i+1:]
	}
	return d.Path
}

// QuerySnapshot is one full, self-consistent delivery from a live query.
// Err marks a transport-level delivery failure; Docs is nil in that case and
// the subscription stays open (the transport retries underneath).
type QuerySnapshot struct {
	Docs []Document
	Err  error
}

// Subscription is a cancellable handle on a live query. Snapshots delivers a
// full result set on every remote change, starting with the current state.
// Cancel is idempotent and closes the snapshot channel.
type Subscription interface {
	Snapshots() <-chan QuerySnapshot
	Cancel()
}

// Txn is the read-modify-write view inside RunTransaction. Writes are
// buffered and applied atomically when the transaction function returns nil.
type Txn interface {
	Get(path string) (*Document, error)
	Set(path string, data map[string]any, merge bool)
	Delete(path string)
}

// DocumentStore is the remote backend the sync layer is built against.
// Get returns (nil, nil) when the document does not exist; absence is a
// valid outcome, not an error. Set with merge combines the given fields into
// the existing document instead of replacing it.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*Document, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error

	// List returns every document directly inside collection (one extra
	// path segment), in unspecified order.
	List(ctx context.Context, collection string) ([]Document, error)

	// QueryCreatedRange returns the documents in collection whose
	// "createdAt" field falls in [start, end).
	QueryCreatedRange(ctx context.Context, collection string, start, end time.Time) ([]Document, error)

	// SubscribeRange opens a live query over the documents in collection
	// whose key falls in [startKey, endKey], ordered ascending by key.
	SubscribeRange(ctx context.Context, collection, startKey, endKey string) (Subscription, error)

	// Subscribe opens a live query over all documents in collection.
	Subscribe(ctx context.Context, collection string) (Subscription, error)

	RunTransaction(ctx context.Context, fn func(tx Txn) error) error
}

// Document paths.
//
//	users/{uid}
//	users/{uid}/dailyMoods/{dateKey}
//	users/{uid}/friends/{friendId}
//	users/{uid}/dailyMoods/{dateKey}/reactions/{reactorId}

func UserPath(userID string) string { return "users/" + userID }

func MoodCollection(userID string) string { return "users/" + userID + "/dailyMoods" }

func MoodPath(userID string, key DateKey) string {
	return MoodCollection(userID) + "/" + string(key)
}

func FriendCollection(userID string) string { return "users/" + userID + "/friends" }

func FriendPath(userID, friendID string) string {
	return FriendCollection(userID) + "/" + friendID
}

func ReactionCollection(authorID string, key DateKey) string {
	return MoodPath(authorID, key) + "/reactions"
}

func ReactionPath(authorID string, key DateKey, reactorID string) string {
	return ReactionCollection(authorID, key) + "/" + reactorID
}
