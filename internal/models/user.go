package models

import "time"

// User mirrors an account owned by the identity provider.
type User struct {
	ID             string    `db:"id" json:"_id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Username       string    `db:"username" json:"username"`
	Email          string    `db:"email" json:"email"`
	ProfilePicture string    `db:"profile_picture" json:"profile_picture"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// UserProfile is the slice of a user needed to render a message.
type UserProfile struct {
	ID             string `db:"id" json:"_id"`
	FullName       string `db:"full_name" json:"full_name"`
	Username       string `db:"username" json:"username"`
	ProfilePicture string `db:"profile_picture" json:"profile_picture"`
}

// Profile returns the render profile of the user.
func (u User) Profile() UserProfile {
	return UserProfile{ID: u.ID, FullName: u.FullName, Username: u.Username, ProfilePicture: u.ProfilePicture}
}
