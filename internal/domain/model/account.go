package model

import "time"

// Account is a broker account ("app") registered by an operator.
type Account struct {
	ID         int64
	UserID     int64
	Name       string
	ClientCode string
	IsDefault  bool
	CreatedAt  time.Time
}

// AccountStatus reports whether an account owns the live broker session.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// AccountSecret holds the stored broker credentials of one account. Values
// are plaintext at this boundary; the store encrypts them at rest.
type AccountSecret struct {
	AccountID    int64
	APIKey       string
	APISecret    string
	PIN          string
	BaseURL      string
	RefreshToken string
	UpdatedAt    time.Time
}

// Credentials builds the login bundle for the account's client code.
func (s AccountSecret) Credentials(clientCode string) Credentials {
	return Credentials{
		ClientCode: clientCode,
		APIKey:     s.APIKey,
		APISecret:  s.APISecret,
		PIN:        s.PIN,
		BaseURL:    s.BaseURL,
	}
}

// SelectDefault applies the fallback policy used when no session is active:
// the account flagged default, else the earliest created. Returns nil for an
// empty list.
func SelectDefault(accounts []Account) *Account {
	var first *Account
	for i := range accounts {
		a := &accounts[i]
		if a.IsDefault {
			return a
		}
		if first == nil || a.CreatedAt.Before(first.CreatedAt) ||
			(a.CreatedAt.Equal(first.CreatedAt) && a.ID < first.ID) {
			first = a
		}
	}
	return first
}
