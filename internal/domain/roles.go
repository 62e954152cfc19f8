// Package domain defines shared domain constants and types.
package domain

const (
	// RoleAdmin represents a user in the configured admin allow-list.
	RoleAdmin = "admin"
	// RoleUser represents a standard customer with no elevated privileges.
	RoleUser = "user"
)
