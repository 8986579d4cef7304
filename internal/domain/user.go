package domain

// User is a person known to the scheduler. Users are referenced by groups but
// never created or destroyed by group management.
type User struct {
	ID           int64  `json:"user_id" db:"user_id"`
	UserName     string `json:"user_name" db:"user_name"`
	DisplayName  string `json:"display_name" db:"display_name"`
	EmailAddress string `json:"email_address" db:"email_address"`
}
