package domain

import "time"

type ServerStats struct {
	ServerID ServerID
	Name     string
	Channels int
	Members  int
	Online   int
}

type InstanceStats struct {
	Timestamp     time.Time
	Uptime        time.Duration
	Connections   map[string]int // by protocol
	Identities    int
	MessagesToday int64
	Servers       []ServerStats
	TypingActive  int
	BucketsActive int
}
