package models

import "time"

// User is the read-only view of an account the marketplace needs.
// Accounts are managed elsewhere; the marketplace never writes them.
type User struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	IsModerator bool      `bson:"is_moderator" json:"is_moderator"`
	Suspended   bool      `bson:"suspended" json:"suspended"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
