package domain

import "sort"

// Capability is a permission bitfield. A set bit grants the action.
type Capability uint32

const (
	CapViewChannel Capability = 1 << iota
	CapManageChannels
	CapManageRoles
	CapManageServer
	CapCreateInvite
	CapChangeNickname
	CapManageNicknames
	CapKickMembers
	CapBanMembers
	CapModerateMembers
	CapSendMessages
	CapEmbedLinks
	CapAttachFiles
	CapAddReactions
	CapUseExternalEmoji
	CapMentionEveryone
	CapManageMessages
	CapReadHistory
	CapPinMessages
	CapManageWebhooks
	CapCreateThreads
	CapAdministrator

	capCount = iota
)

// CapAll is the full capability set granted to owners and administrators.
const CapAll Capability = 1<<capCount - 1

// Baseline bitfields for the roles seeded at server creation.
const (
	DefaultEveryonePermissions = CapViewChannel | CapSendMessages | CapEmbedLinks |
		CapAttachFiles | CapAddReactions | CapUseExternalEmoji | CapReadHistory |
		CapChangeNickname | CapCreateInvite | CapCreateThreads

	DefaultModeratorPermissions = DefaultEveryonePermissions | CapKickMembers |
		CapBanMembers | CapModerateMembers | CapManageMessages | CapManageNicknames |
		CapPinMessages | CapMentionEveryone
)

func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

// PermissionQuery carries everything one resolution works over. Callers load
// the data; resolution itself performs no I/O.
type PermissionQuery struct {
	Server   *Server
	Channel  *Channel // nil resolves the server-level baseline only
	Identity IdentityID
	Roles    []*Role // roles the identity holds, @everyone included
	Admin    bool    // system admin from bootstrap configuration
}

// ResolvePermissions computes the effective capability set for an identity in
// a channel. It is deterministic and side-effect free.
//
// The baseline is the union of all held role bitfields. Server owners, system
// admins and holders of CapAdministrator short-circuit to the full set.
// Channel overrides are then applied in ascending role rank, each override's
// deny bits clearing and allow bits setting the running result, so a
// higher-ranked role's override has final say over a lower-ranked one. An
// identity-specific override is applied last and outranks every role
// override.
func ResolvePermissions(q PermissionQuery) Capability {
	if q.Server == nil {
		return 0
	}
	if q.Admin || q.Identity == q.Server.OwnerID {
		return CapAll
	}

	var caps Capability
	for _, r := range q.Roles {
		caps |= r.Permissions
	}
	if caps.Has(CapAdministrator) {
		return CapAll
	}
	if q.Channel == nil {
		return caps
	}

	held := make([]*Role, len(q.Roles))
	copy(held, q.Roles)
	sort.SliceStable(held, func(i, j int) bool { return held[i].Rank < held[j].Rank })

	for _, role := range held {
		if ov := q.Channel.OverrideForRole(role.ID); ov != nil {
			caps = (caps &^ ov.Deny) | ov.Allow
		}
	}
	if ov := q.Channel.OverrideForIdentity(q.Identity); ov != nil {
		caps = (caps &^ ov.Deny) | ov.Allow
	}
	return caps
}
