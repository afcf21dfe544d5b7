package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TokenValidity is how long an access token is trusted after login or
// refresh. The broker does not report an explicit expiry.
const TokenValidity = 24 * time.Hour

// SessionState is the token state held by one broker client.
type SessionState struct {
	AccessToken  string
	RefreshToken string
	FeedToken    string
	TokenExpiry  time.Time
}

// ValidAt reports whether the access token is present and strictly before
// its expiry at the given instant.
func (s SessionState) ValidAt(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.TokenExpiry)
}

// Snapshot converts the state into its persisted form.
func (s SessionState) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		FeedToken:    s.FeedToken,
		TokenExpiry:  s.TokenExpiry,
	}
}

// SessionSnapshot is the serialized session handed back to callers after a
// successful activation and accepted again by restore.
type SessionSnapshot struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	FeedToken    string    `json:"feed_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry"`
}

// State converts a snapshot back into client token state.
func (s SessionSnapshot) State() SessionState {
	return SessionState{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		FeedToken:    s.FeedToken,
		TokenExpiry:  s.TokenExpiry,
	}
}

// MarshalSnapshot encodes a snapshot as JSON with an RFC 3339 expiry.
func MarshalSnapshot(s SessionSnapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a snapshot produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (SessionSnapshot, error) {
	var s SessionSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return SessionSnapshot{}, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	return s, nil
}

// ActiveSession is the record of the single live broker session.
type ActiveSession struct {
	AccountID   int64
	AccessToken string
	FeedToken   string
	TokenExpiry time.Time
	ActivatedAt time.Time
}
