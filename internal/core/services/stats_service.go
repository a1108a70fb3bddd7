package services

import (
	"context"
	"sync/atomic"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	apperrors "parley/pkg/errors"
)

// MetricsRecorder receives the engine's instrumentation signals. The
// prometheus collector implements it; a nil recorder turns the signals off
// without branching at every call site.
type MetricsRecorder interface {
	CommandProcessed(command, status string, took time.Duration)
	EventBroadcast(event string, fanout int)
	MessageStored()
	ConnectionOpened(protocol string)
	ConnectionClosed(protocol string)
	RateLimited(scope string)
}

// StatsService aggregates live counters for the admin stats endpoint and
// forwards instrumentation to the metrics recorder.
type StatsService struct {
	repos    ports.Repositories
	registry ports.Registry
	presence ports.PresenceService
	recorder MetricsRecorder

	started       time.Time
	messagesToday atomic.Int64
	commandsTotal atomic.Int64
	rejectedTotal atomic.Int64
}

func NewStatsService(repos ports.Repositories, registry ports.Registry, presence ports.PresenceService, recorder MetricsRecorder) *StatsService {
	return &StatsService{
		repos:    repos,
		registry: registry,
		presence: presence,
		recorder: recorder,
		started:  time.Now().UTC(),
	}
}

func (s *StatsService) RecordCommand(command string, err error, took time.Duration) {
	s.commandsTotal.Add(1)
	status := "ok"
	if err != nil {
		s.rejectedTotal.Add(1)
		status = "error"
		if appErr := apperrors.GetAppError(err); appErr != nil {
			status = string(appErr.Code)
			if appErr.Code == apperrors.ErrCodeRateLimit && s.recorder != nil {
				s.recorder.RateLimited("command")
			}
		}
	}
	if s.recorder != nil {
		s.recorder.CommandProcessed(command, status, took)
	}
}

func (s *StatsService) RecordBroadcast(event string, fanout int) {
	if s.recorder != nil {
		s.recorder.EventBroadcast(event, fanout)
	}
}

func (s *StatsService) RecordMessage() {
	s.messagesToday.Add(1)
	if s.recorder != nil {
		s.recorder.MessageStored()
	}
}

func (s *StatsService) RecordConnection(protocol string, opened bool) {
	if s.recorder == nil {
		return
	}
	if opened {
		s.recorder.ConnectionOpened(protocol)
	} else {
		s.recorder.ConnectionClosed(protocol)
	}
}

func (s *StatsService) RecordAdmissionRejected() {
	if s.recorder != nil {
		s.recorder.RateLimited("admission")
	}
}

// Snapshot assembles the live instance view served by the admin API.
func (s *StatsService) Snapshot(ctx context.Context) (*domain.InstanceStats, error) {
	servers, err := s.repos.Servers().List(ctx)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	stats := &domain.InstanceStats{
		Timestamp:     time.Now().UTC(),
		Uptime:        time.Since(s.started),
		Connections:   s.registry.Counts(),
		Identities:    s.registry.IdentityCount(),
		MessagesToday: s.messagesToday.Load(),
		TypingActive:  s.presence.TypingCount(),
		BucketsActive: s.registry.BucketCount(),
	}

	for _, server := range servers {
		channels, err := s.repos.Channels().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		members, err := s.repos.Members().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		online := 0
		for _, member := range members {
			if s.presence.Status(member.Identity).Status != domain.PresenceOffline {
				online++
			}
		}
		stats.Servers = append(stats.Servers, domain.ServerStats{
			ServerID: server.ID,
			Name:     server.Name,
			Channels: len(channels),
			Members:  len(members),
			Online:   online,
		})
	}
	return stats, nil
}
