package domain

import "time"

type RoleID string

// EveryoneRoleName is the managed rank-0 role every server owns. It cannot
// be deleted or re-ranked and is folded into every permission resolution.
const EveryoneRoleName = "@everyone"

type Role struct {
	ID          RoleID
	ServerID    ServerID
	Name        string
	Color       string
	Permissions Capability
	Rank        int
	Managed     bool // the @everyone role
	CreatedAt   time.Time
}

// HighestRank returns the maximum rank among the given roles, the actor's
// effective rank for hierarchy comparisons. Zero roles rank at 0.
func HighestRank(roles []*Role) int {
	rank := 0
	for _, r := range roles {
		if r.Rank > rank {
			rank = r.Rank
		}
	}
	return rank
}
