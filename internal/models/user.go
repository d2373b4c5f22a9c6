package models

// User is the subset of the account record the live core needs.
type User struct {
	ID       string `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}
