package domain

import "time"

// Member ties an identity to a server with its role set and optional
// nickname override. Role ids never reference another server's roles.
type Member struct {
	ServerID ServerID
	Identity IdentityID
	Username string
	Nickname string // override, empty means Username
	RoleIDs  []RoleID
	JoinedAt time.Time
}

func (m *Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}

func (m *Member) HasRole(id RoleID) bool {
	for _, r := range m.RoleIDs {
		if r == id {
			return true
		}
	}
	return false
}

func (m *Member) AddRole(id RoleID) {
	if !m.HasRole(id) {
		m.RoleIDs = append(m.RoleIDs, id)
	}
}

func (m *Member) RemoveRole(id RoleID) {
	for i, r := range m.RoleIDs {
		if r == id {
			m.RoleIDs = append(m.RoleIDs[:i], m.RoleIDs[i+1:]...)
			return
		}
	}
}

type Ban struct {
	ServerID  ServerID
	Identity  IdentityID
	Actor     IdentityID
	Reason    string
	CreatedAt time.Time
}
