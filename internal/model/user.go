package model

// User roles carried in platform-issued access tokens
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal is the caller identity extracted from a verified bearer token.
// Accounts themselves live in the surrounding platform.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

// IsAdmin checks if the caller has the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
