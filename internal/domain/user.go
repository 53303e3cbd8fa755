// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

var ErrEmptyUserID = errors.New("user id empty")

type UserID string

type User struct {
	ID        UserID `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// Profile is the public snippet other users see in call and message events.
type Profile struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// NewUser is a tiny helper for identities whose profile could not be loaded.
func NewUser(id UserID) (*User, error) {
	if id == "" {
		return nil, ErrEmptyUserID
	}
	return &User{ID: id}, nil
}

func (u *User) Name() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return string(u.ID)
	}
	return name
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name(), Avatar: u.Avatar}
}
