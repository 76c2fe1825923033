package models

// UserRole represents the roles accepted by the API.
type UserRole string

const (
	// RoleAdmin may change archiving settings and inspect history.
	RoleAdmin UserRole = "ADMIN"
	// RoleService is used by the LMS event forwarder.
	RoleService UserRole = "SERVICE"
)
