// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

type UserID string

// User is the relay-visible identity of one channel. Usernames are client
// supplied and may be empty or shared by several users.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, username string) *User {
	return &User{ID: id, Username: TrimUsername(username)}
}

func (u *User) SetUsername(username string) {
	u.Username = TrimUsername(username)
}

// TrimUsername strips surrounding space and cuts the name to MaxUsernameLen
// bytes without splitting a rune.
func TrimUsername(username string) string {
	username = strings.TrimSpace(username)
	if len(username) <= MaxUsernameLen {
		return username
	}
	cut := MaxUsernameLen
	for cut > 0 && !utf8.RuneStart(username[cut]) {
		cut--
	}
	return username[:cut]
}
