package domain

// Role enumerates caller roles as resolved by the identity system.
type Role string

const (
	RoleUsuario Role = "USUARIO"
	RoleTecnico Role = "TECNICO"
	RoleAdmin   Role = "ADMIN"
)

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUsuario, RoleTecnico, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsTechnician reports whether the actor may work tickets.
func (a Actor) IsTechnician() bool {
	return a.Role == RoleTecnico || a.Role == RoleAdmin
}

// IsAdmin reports whether the actor has administrative privileges.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
