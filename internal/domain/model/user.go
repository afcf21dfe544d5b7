package model

import "time"

// User is an operator of this system, distinct from broker accounts.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
