package domain

type IdentityID string

// Identity is an authenticated principal as reported by the identity
// provider. The engine trusts it without re-validation.
type Identity struct {
	ID       IdentityID
	Username string
	Admin    bool
}
