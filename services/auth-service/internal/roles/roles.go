// Package roles defines the account roles issued in access tokens.
package roles

const (
	Owner = "owner"
	Staff = "staff"
	Admin = "admin"
)

func Known(role string) bool {
	switch role {
	case Owner, Staff, Admin:
		return true
	}
	return false
}

// CanManageUsers reports whether the role may create or change other
// accounts on the same tenant.
func CanManageUsers(role string) bool {
	return role == Owner || role == Admin
}
