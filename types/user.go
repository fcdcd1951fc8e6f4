package types

import "time"

// User represents an account in the system.
// Profile fields beyond name are optional and stored as NULL when absent.
type User struct {
	// ID is the unique identifier of the user. It is assigned at creation
	// and never exposed in API responses.
	ID int `json:"-" db:"id"`

	// Email is the unique address the user signs in with.
	Email string `json:"email" db:"email"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Age is the user's age in years, if provided.
	Age *int `json:"age" db:"age"`

	// Gender is a free-form self-description, if provided.
	Gender *string `json:"gender" db:"gender"`

	// Image references the user's profile image, if provided.
	Image *string `json:"image" db:"image"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}
