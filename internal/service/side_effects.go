package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/pkg/jobs"
)

// Background job types handled by SideEffectDispatcher.
const (
	JobVideoRoomProvision = "video_room.provision"
	JobNotificationSend   = "notification.send"
)

// Notification kinds.
const (
	NotificationBooked    = "session.booked"
	NotificationCancelled = "session.cancelled"
	NotificationApproved  = "session.approved"
	NotificationNoShow    = "session.no_show"
)

// VideoRoomProvisioner creates a meeting room for a durable session.
type VideoRoomProvisioner interface {
	Provision(ctx context.Context, session models.Session, participants []string) (string, error)
}

// Notifier delivers a booking notification.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Notification is the fire-and-forget message sent to participants.
type Notification struct {
	Kind        string    `json:"kind"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	TherapistID string    `json:"therapist_id"`
	StartTime   time.Time `json:"start_time"`
}

type videoRoomJob struct {
	Session      models.Session
	Participants []string
}

type videoRoomStore interface {
	SetVideoRoom(ctx context.Context, id, url string) error
}

// SideEffectDispatcher runs post-commit work. Failures are logged and retried by the queue; they
// never reach the booking that triggered them.
type SideEffectDispatcher struct {
	rooms    VideoRoomProvisioner
	notifier Notifier
	sessions videoRoomStore
	cache    *AvailabilityCacheService
	queue    jobEnqueuer
	logger   *zap.Logger
}

// NewSideEffectDispatcher constructs the dispatcher. Without a queue, jobs run inline.
func NewSideEffectDispatcher(rooms VideoRoomProvisioner, notifier Notifier, sessions videoRoomStore, cache *AvailabilityCacheService, logger *zap.Logger) *SideEffectDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffectDispatcher{rooms: rooms, notifier: notifier, sessions: sessions, cache: cache, logger: logger}
}

// UseQueue routes jobs through a background queue.
func (d *SideEffectDispatcher) UseQueue(queue jobEnqueuer) {
	if d != nil {
		d.queue = queue
	}
}

// SessionCreated provisions a room for video sessions and notifies participants.
func (d *SideEffectDispatcher) SessionCreated(ctx context.Context, session models.Session, therapist *models.Therapist) {
	if d == nil {
		return
	}
	if session.SessionType == models.SessionTypeVideo {
		participants := []string{session.UserID}
		if therapist != nil {
			participants = append(participants, therapist.DisplayName)
		}
		d.dispatch(ctx, jobs.Job{
			ID:      session.ID,
			Type:    JobVideoRoomProvision,
			Payload: videoRoomJob{Session: session, Participants: participants},
		})
	}
	d.Notify(ctx, NotificationBooked, session)
}

// Notify sends a notification about session without waiting for delivery.
func (d *SideEffectDispatcher) Notify(ctx context.Context, kind string, session models.Session) {
	if d == nil || d.notifier == nil {
		return
	}
	d.dispatch(ctx, jobs.Job{
		ID:   session.ID,
		Type: JobNotificationSend,
		Payload: Notification{
			Kind:        kind,
			SessionID:   session.ID,
			UserID:      session.UserID,
			TherapistID: session.TherapistID,
			StartTime:   session.StartTime,
		},
	})
}

func (d *SideEffectDispatcher) dispatch(ctx context.Context, job jobs.Job) {
	if d.queue != nil {
		if err := d.queue.Enqueue(job); err != nil {
			d.logger.Warn("side effect dropped", zap.String("type", job.Type), zap.String("id", job.ID), zap.Error(err))
		}
		return
	}
	if err := d.Handle(ctx, job); err != nil {
		d.logger.Warn("side effect failed", zap.String("type", job.Type), zap.String("id", job.ID), zap.Error(err))
	}
}

// Handle executes one job; it is the queue's handler.
func (d *SideEffectDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobVideoRoomProvision:
		payload, ok := job.Payload.(videoRoomJob)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
		}
		if d.rooms == nil {
			return nil
		}
		url, err := d.rooms.Provision(ctx, payload.Session, payload.Participants)
		if err != nil {
			return fmt.Errorf("provision video room: %w", err)
		}
		if d.sessions == nil || url == "" {
			return nil
		}
		return d.sessions.SetVideoRoom(ctx, payload.Session.ID, url)
	case JobNotificationSend:
		payload, ok := job.Payload.(Notification)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
		}
		return d.notifier.Notify(ctx, payload)
	case JobCacheInvalidate:
		therapistID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
		}
		return d.cache.purge(ctx, therapistID)
	default:
		d.logger.Warn("unknown job type", zap.String("type", job.Type))
		return nil
	}
}

// LogVideoRoomProvisioner derives a deterministic room URL and logs the request.
type LogVideoRoomProvisioner struct {
	BaseURL string
	Logger  *zap.Logger
}

// Provision implements VideoRoomProvisioner.
func (p LogVideoRoomProvisioner) Provision(_ context.Context, session models.Session, participants []string) (string, error) {
	url := strings.TrimRight(p.BaseURL, "/") + "/" + session.ID
	if p.Logger != nil {
		p.Logger.Info("video room provisioned", zap.String("session_id", session.ID), zap.Strings("participants", participants), zap.String("url", url))
	}
	return url, nil
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, notification Notification) error {
	if n.Logger != nil {
		n.Logger.Info("session notification",
			zap.String("kind", notification.Kind),
			zap.String("session_id", notification.SessionID),
			zap.String("user_id", notification.UserID),
			zap.String("therapist_id", notification.TherapistID),
			zap.Time("start_time", notification.StartTime),
		)
	}
	return nil
}
