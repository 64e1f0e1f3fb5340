package session

import "time"

// Session is a Matrix login that can be reused across restarts.
type Session struct {
	Homeserver  string    `yaml:"homeserver"`
	UserID      string    `yaml:"user_id"`
	DeviceID    string    `yaml:"device_id"`
	AccessToken string    `yaml:"access_token"`
	NextBatch   string    `yaml:"next_batch,omitempty"`
	SavedAt     time.Time `yaml:"saved_at"`
}

// Valid reports whether the session holds enough to skip a password login.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != "" && s.AccessToken != "" && s.Homeserver != ""
}
