package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCarer      = "carer"       // schedules and reviews check-in calls for their workspace
	RoleAdmin      = "admin"       // workspace administration, reporting
	RoleSuperAdmin = "super_admin" // platform operators
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
