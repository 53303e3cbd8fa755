package domain

import "time"

// Member represents a user's presence on one live connection.
// No transport or lifecycle logic here.
type Member struct {
	User        *User
	ConnectedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, at time.Time) *Member {
	return &Member{User: user, ConnectedAt: at}
}
