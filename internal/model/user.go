// internal/model/user.go
package model

import "time"

type User struct {
	ID                     int64      `db:"id" json:"id"`
	Username               string     `db:"username" json:"username"`
	Email                  string     `db:"email" json:"email"`
	FirstName              string     `db:"first_name" json:"first_name"`
	LastName               string     `db:"last_name" json:"last_name"`
	IsStaff                bool       `db:"is_staff" json:"is_staff"`
	IsActive               bool       `db:"is_active" json:"is_active"`
	DateJoined             time.Time  `db:"date_joined" json:"date_joined"`
	LastLogin              *time.Time `db:"last_login" json:"last_login,omitempty"`
	EmailConsent           bool       `db:"email_consent" json:"email_consent"`
	UnsubscribeToken       string     `db:"unsubscribe_token" json:"-"`
	SustainabilityPriority int        `db:"sustainability_priority" json:"sustainability_priority"`
	DreamDestination       string     `db:"dream_destination" json:"dream_destination"`
}
