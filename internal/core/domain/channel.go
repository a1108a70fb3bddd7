package domain

import "time"

type ChannelID string

type ChannelState string

const (
	ChannelStateActive   ChannelState = "active"
	ChannelStateArchived ChannelState = "archived"
	ChannelStateDeleted  ChannelState = "deleted"
)

type ChannelVisibility string

const (
	ChannelPublic  ChannelVisibility = "public"
	ChannelPrivate ChannelVisibility = "private"
)

// PermissionOverride adjusts a role's or identity's baseline permissions
// inside one channel. Exactly one of RoleID/IdentityID is set.
type PermissionOverride struct {
	RoleID     RoleID     `json:"role_id,omitempty"`
	IdentityID IdentityID `json:"identity_id,omitempty"`
	Allow      Capability `json:"allow"`
	Deny       Capability `json:"deny"`
}

type Channel struct {
	ID         ChannelID
	ServerID   ServerID
	Name       string
	Topic      string
	Visibility ChannelVisibility
	State      ChannelState
	Overrides  []PermissionOverride
	SlowMode   time.Duration // minimum interval between sends per member, 0 = off
	Members    []IdentityID  // joined roster; for private channels it doubles as the access grant
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *Channel) IsPrivate() bool {
	return c.Visibility == ChannelPrivate
}

// HasMember reports whether an identity is on the channel's roster.
func (c *Channel) HasMember(id IdentityID) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// AddMember puts the identity on the roster. Returns false if it was
// already there.
func (c *Channel) AddMember(id IdentityID) bool {
	if c.HasMember(id) {
		return false
	}
	c.Members = append(c.Members, id)
	return true
}

// RemoveMember takes the identity off the roster. Returns false if it was
// not there.
func (c *Channel) RemoveMember(id IdentityID) bool {
	for i, m := range c.Members {
		if m == id {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return true
		}
	}
	return false
}

// OverrideForRole returns the channel override targeting a role, if any.
func (c *Channel) OverrideForRole(id RoleID) *PermissionOverride {
	for i := range c.Overrides {
		if c.Overrides[i].RoleID == id && c.Overrides[i].RoleID != "" {
			return &c.Overrides[i]
		}
	}
	return nil
}

// OverrideForIdentity returns the channel override targeting an identity, if any.
func (c *Channel) OverrideForIdentity(id IdentityID) *PermissionOverride {
	for i := range c.Overrides {
		if c.Overrides[i].IdentityID == id && c.Overrides[i].IdentityID != "" {
			return &c.Overrides[i]
		}
	}
	return nil
}

// SetOverride replaces or appends the override for the given subject.
func (c *Channel) SetOverride(ov PermissionOverride) {
	for i := range c.Overrides {
		if c.Overrides[i].RoleID == ov.RoleID && c.Overrides[i].IdentityID == ov.IdentityID {
			c.Overrides[i] = ov
			return
		}
	}
	c.Overrides = append(c.Overrides, ov)
}

// ClearOverride removes the override for the given subject, if present.
func (c *Channel) ClearOverride(roleID RoleID, identityID IdentityID) {
	for i := range c.Overrides {
		if c.Overrides[i].RoleID == roleID && c.Overrides[i].IdentityID == identityID {
			c.Overrides = append(c.Overrides[:i], c.Overrides[i+1:]...)
			return
		}
	}
}
