package model

type UserRole string // role claim issued by the identity service

const (
	RoleAdmin     UserRole = "admin"     // system administrator
	RoleOfficer   UserRole = "officer"   // licensing officer, may approve/reject/revoke
	RoleStaff     UserRole = "staff"     // frontline BPLO staff
	RoleApplicant UserRole = "applicant" // business owner filing applications
)

// Actor is the caller of a lifecycle operation. It is always passed
// explicitly; nothing in the service layer reads a session.
type Actor struct {
	UserID uint     `json:"user_id"`
	Role   UserRole `json:"role"`
}

func (a Actor) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the actor works for the licensing office.
func (a Actor) IsStaff() bool {
	return a.HasRole(RoleAdmin, RoleOfficer, RoleStaff)
}
