package model

import "time"

// Settings holds an operator's trading preferences.
type Settings struct {
	// PaperMode records orders in the ledger without sending them to the
	// broker.
	PaperMode      bool
	DefaultLotSize int
	UpdatedAt      time.Time
}

// DefaultSettings returns the preferences applied when none are stored.
func DefaultSettings() Settings {
	return Settings{PaperMode: false, DefaultLotSize: 1}
}

// SettingsPatch carries a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	PaperMode      *bool
	DefaultLotSize *int
}

// Apply returns s with the non-nil fields of p applied.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.PaperMode != nil {
		s.PaperMode = *p.PaperMode
	}
	if p.DefaultLotSize != nil {
		s.DefaultLotSize = *p.DefaultLotSize
	}
	return s
}
