// Package domain contains core domain types for the chatbot console.
package domain

import "strings"

// Credentials are the username and password submitted on login or signup.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Complete reports whether both fields are non-blank.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}
