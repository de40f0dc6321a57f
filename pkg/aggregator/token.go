package aggregator

import "sync/atomic"

// Token is a one-way cancellation flag scoped to a single route fetch.
// It may be set from any goroutine while the fetch polls it.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns an unset token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the token. It cannot be reset.
func (t *Token) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
