package models

// User is the slice of an account the real-time layer cares about.
// Accounts themselves are owned by the accounts service.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"-"`

	// Picture is the gravatar url derived from the account email.
	Picture string `json:"picture"`
}

// Identity is what a session token resolves to.
type Identity struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Picture  string `json:"picture,omitempty"`
}
