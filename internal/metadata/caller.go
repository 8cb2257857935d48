package metadata

import "slices"

// Roles granted to API clients through auth.clients[].roles.
const (
	RoleAdmin  = "admin"
	RoleWriter = "writer"
)

// UserContext identifies the API client behind a request. ID is the
// client id from the access token and is what created_by and updated_by
// record.
type UserContext struct {
	ID      string   `json:"id"`
	Roles   []string `json:"roles"`
	TokenID string   `json:"token_id,omitempty"`
}

func (u *UserContext) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// IsAdmin reports whether the client may author field definitions.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// CanWrite reports whether the client may change custom field values.
func (u *UserContext) CanWrite() bool {
	return u.IsAdmin() || u.HasRole(RoleWriter)
}
