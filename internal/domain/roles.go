package domain

// Role gates which views and actions a session may use.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleStaff:
		return true
	}
	return false
}
