package oauthsession

import "time"

type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	Email        string    `json:"email,omitempty"`
}

func (s *Session) usable() bool {
	return s != nil && (s.RefreshToken != "" || s.AccessToken != "")
}

type Store interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}
