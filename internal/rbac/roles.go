package rbac

// Default role and audience names. Keep these stable; they are part of the
// identity provider realm contract.
const (
	RoleUser          = "user"
	RoleAdministrator = "administrator"

	AudienceAccount = "account"
)
