package moodlog

// SessionSource is the identity-provider boundary: it supplies the current
// user id (empty when signed out) and delivers change notifications. How
// sessions are established is not this layer's concern.
type SessionSource interface {
	UserID() string
	OnChange(fn func(userID string))
}

// StaticSession is a SessionSource for a fixed, pre-authenticated user:
// the CLI case, where the user id comes from configuration and never
// changes within a process.
type StaticSession struct {
	ID string
}

func (s StaticSession) UserID() string { return s.ID }

func (s StaticSession) OnChange(func(userID string)) {}

var _ SessionSource = StaticSession{}
