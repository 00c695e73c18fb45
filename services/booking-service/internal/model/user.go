package model

import "time"

// User is a chat user; ID is the transport's user id.
type User struct {
	ID          int64
	PhoneNumber string
	FullName    string
	CreatedAt   time.Time
}
