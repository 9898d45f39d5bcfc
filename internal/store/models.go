package store

import (
	"fmt"
	"strings"
)

// ConnectionRecord holds the credentials for one remote management endpoint.
// Host is unique across the store.
type ConnectionRecord struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"-"`
	Enabled  bool   `json:"enabled"`
}

// RecordUpdate is a partial update; nil fields are left untouched.
type RecordUpdate struct {
	Username *string
	Password *string
}

func (r ConnectionRecord) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRecord)
	}
	return nil
}

func (u RecordUpdate) Validate() error {
	if u.Username != nil && strings.TrimSpace(*u.Username) == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidRecord)
	}
	return nil
}
