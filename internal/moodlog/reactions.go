package moodlog

import (
	"context"
	"fmt"
	"sync"

	"moodlog-go/internal/model"
)

// ReactionStream exposes the live reaction set of one post, keyed by the
// post's author and date. A stream holds at most one open subscription:
// calling Listen again tears down the prior subscription first, so a
// re-rendering consumer never leaks listeners. React writes the stream
// owner's own reaction on the currently listened post.
type ReactionStream struct {
	gateway *RemoteMoodGateway
	logger  Logger
	clock   Clock
	selfID  string // the reactor whose reactions React manages

	mu         sync.Mutex
	generation uint64
	sub        Subscription
	authorID   string
	date       DateKey
}

func NewReactionStream(gateway *RemoteMoodGateway, selfID string, clock Clock, logger Logger) *ReactionStream {
	return &ReactionStream{gateway: gateway, selfID: selfID, clock: clock, logger: logger}
}

// Listen subscribes to the reactions on (authorID, date) and invokes fn
// with the full reaction set on every change, starting with the current
// state. Order within the slice is not meaningful; consumers identify
// reactions by reactor id.
func (s *ReactionStream) Listen(ctx context.Context, authorID string, date DateKey, fn func([]model.Reaction)) error {
	s.mu.Lock()
	s.stopLocked()
	s.authorID = authorID
	s.date = date
	gen := s.generation
	s.mu.Unlock()

	sub, err := s.gateway.SubscribeReactions(ctx, authorID, date)
	if err != nil {
		return fmt.Errorf("listening for reactions: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	go s.consume(gen, sub, fn)
	return nil
}

// StopListening cancels the open subscription, if any. Idempotent.
func (s *ReactionStream) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *ReactionStream) stopLocked() {
	s.generation++
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.authorID = ""
	s.date = ""
}

func (s *ReactionStream) consume(gen uint64, sub Subscription, fn func([]model.Reaction)) {
	for snap := range sub.Snapshots() {
		s.mu.Lock()
		stale := s.generation != gen
		s.mu.Unlock()
		if stale {
			return
		}

		if snap.Err != nil {
			s.logger.Warn("reaction delivery failed", "error", snap.Err)
			continue
		}

		reactions := make([]model.Reaction, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			r, err := decodeReaction(doc)
			if err != nil {
				s.logger.Warn("skipping undecodable reaction document", "path", doc.Path, "error", err)
				continue
			}
			reactions = append(reactions, r)
		}
		fn(reactions)
	}
}

// React upserts the stream owner's emoji on the listened post; an empty
// emoji removes it. Returns an error when no post is being listened to.
func (s *ReactionStream) React(ctx context.Context, emoji string) error {
	s.mu.Lock()
	authorID, date := s.authorID, s.date
	s.mu.Unlock()

	if authorID == "" {
		return fmt.Errorf("react: no post is being listened to")
	}
	return s.gateway.SetReaction(ctx, authorID, date, s.selfID, emoji, s.clock.Now())
}
