package domain

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

type Presence struct {
	Identity    IdentityID
	Status      PresenceStatus
	AwayMessage string
	Since       time.Time
}
