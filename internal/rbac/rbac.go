// Package rbac holds the integer role enumeration and the per-operation
// authorization rules.
package rbac

// Role values as stored on user records and carried in tokens.
type Role int

const (
	RoleMember    Role = 0
	RoleStaff     Role = 1
	RoleModerator Role = 2
	RoleAdmin     Role = 3
)

// CanDeletePost allows the post owner or a moderator. The checks are exact
// equality on purpose: an admin (role 3) cannot moderate posts.
func CanDeletePost(actorID int64, role Role, ownerID int64) bool {
	return actorID == ownerID || role == RoleModerator
}

// CanManageEvents gates event create/update/delete.
func CanManageEvents(role Role) bool {
	return role == RoleAdmin
}

// Valid reports whether r is one of the known roles.
func Valid(r Role) bool {
	return r >= RoleMember && r <= RoleAdmin
}
