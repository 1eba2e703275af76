package model

// UserRole represents the role of a caller. Authentication happens upstream;
// the role arrives with the request.
type UserRole string

const (
	RoleStudent   UserRole = "student"
	RoleTeacher   UserRole = "teacher"
	RoleAdmin     UserRole = "admin"
	RoleAnonymous UserRole = "anonymous"
)

// ParseRole maps a header value to a role. Unknown values are anonymous.
func ParseRole(s string) UserRole {
	switch UserRole(s) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return UserRole(s)
	}
	return RoleAnonymous
}

// Identity is the caller of one request.
type Identity struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}

// IsAnonymous is true for callers without a user id.
func (i Identity) IsAnonymous() bool {
	return i.UserID == "" || i.Role == RoleAnonymous
}

// IsTeacher is true for teachers and admins.
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher || i.Role == RoleAdmin
}

// Priority maps the caller to a scheduling priority.
func (i Identity) Priority() PriorityLevel {
	if i.IsAnonymous() {
		return PriorityAnonymous
	}
	return PriorityAuthenticated
}
