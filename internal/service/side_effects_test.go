package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/pkg/jobs"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, notification.Kind)
	return n.err
}

type failingProvisioner struct{}

func (failingProvisioner) Provision(context.Context, models.Session, []string) (string, error) {
	return "", errors.New("provider down")
}

type failingCacheRepo struct{ deletes int }

func (r *failingCacheRepo) Get(context.Context, string, interface{}) error { return errors.New("down") }
func (r *failingCacheRepo) Generation(context.Context, string) (int64, error) {
	return 0, errors.New("down")
}
func (r *failingCacheRepo) Incr(context.Context, string) (int64, error) { return 0, errors.New("down") }
func (r *failingCacheRepo) SetIfGeneration(context.Context, string, int64, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("down")
}
func (r *failingCacheRepo) DeleteByPattern(context.Context, string) error {
	r.deletes++
	return errors.New("down")
}

func TestSessionCreatedRunsInlineWithoutQueue(t *testing.T) {
	store := newMemStore()
	store.addSession(models.Session{ID: "s-1"})
	notifier := &recordingNotifier{}
	dispatcher := NewSideEffectDispatcher(LogVideoRoomProvisioner{BaseURL: "https://rooms.test/"}, notifier, store, nil, nil)

	dispatcher.SessionCreated(context.Background(), models.Session{ID: "s-1", SessionType: models.SessionTypeVideo}, nil)

	url := store.session("s-1").VideoRoomURL
	require.NotNil(t, url)
	assert.Equal(t, "https://rooms.test/s-1", *url)
	assert.Equal(t, []string{NotificationBooked}, notifier.kinds)
}

func TestSessionCreatedSkipsRoomForNonVideo(t *testing.T) {
	queue := &recordingEnqueuer{}
	dispatcher := NewSideEffectDispatcher(LogVideoRoomProvisioner{}, &recordingNotifier{}, nil, nil, nil)
	dispatcher.UseQueue(queue)

	dispatcher.SessionCreated(context.Background(), models.Session{ID: "s-1", SessionType: models.SessionTypeChat}, nil)
	assert.Equal(t, []string{JobNotificationSend}, queue.jobs)
}

func TestSideEffectFailuresNeverPropagate(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	dispatcher := NewSideEffectDispatcher(failingProvisioner{}, notifier, newMemStore(), nil, nil)

	assert.NotPanics(t, func() {
		dispatcher.SessionCreated(context.Background(), models.Session{ID: "s-1", SessionType: models.SessionTypeVideo}, nil)
	})
	assert.Len(t, notifier.kinds, 1)

	queue := &recordingEnqueuer{err: jobs.ErrQueueFull}
	dispatcher.UseQueue(queue)
	assert.NotPanics(t, func() {
		dispatcher.Notify(context.Background(), NotificationCancelled, models.Session{ID: "s-1"})
	})
}

func TestHandleRejectsMismatchedPayload(t *testing.T) {
	dispatcher := NewSideEffectDispatcher(LogVideoRoomProvisioner{}, &recordingNotifier{}, nil, nil, nil)
	assert.Error(t, dispatcher.Handle(context.Background(), jobs.Job{Type: JobVideoRoomProvision, Payload: "nope"}))
	assert.Error(t, dispatcher.Handle(context.Background(), jobs.Job{Type: JobNotificationSend, Payload: 42}))
	assert.NoError(t, dispatcher.Handle(context.Background(), jobs.Job{Type: "unknown"}))
}

func TestInvalidationFallsBackToRetryQueue(t *testing.T) {
	repo := &failingCacheRepo{}
	cache := NewAvailabilityCacheService(repo, nil, time.Minute, nil, true)

	assert.Error(t, cache.InvalidateTherapist(context.Background(), testTherapist))

	queue := &recordingEnqueuer{}
	cache.UseRetryQueue(queue)
	require.NoError(t, cache.InvalidateTherapist(context.Background(), testTherapist))
	assert.Equal(t, []string{JobCacheInvalidate}, queue.jobs)

	dispatcher := NewSideEffectDispatcher(nil, nil, nil, cache, nil)
	assert.Error(t, dispatcher.Handle(context.Background(), jobs.Job{Type: JobCacheInvalidate, Payload: testTherapist}))
	assert.Equal(t, 3, repo.deletes)

	queue.err = jobs.ErrQueueFull
	assert.Error(t, cache.InvalidateTherapist(context.Background(), testTherapist))
}

func TestCacheGetErrorsAreNotHits(t *testing.T) {
	cache := NewAvailabilityCacheService(&failingCacheRepo{}, nil, time.Minute, nil, true)
	var dest map[string]string
	hit, err := cache.Get(context.Background(), testTherapist, testDate, &dest)
	assert.False(t, hit)
	assert.Error(t, err)

	disabled := NewAvailabilityCacheService(&failingCacheRepo{}, nil, time.Minute, nil, false)
	hit, err = disabled.Get(context.Background(), testTherapist, testDate, &dest)
	assert.False(t, hit)
	assert.NoError(t, err)
	assert.NoError(t, disabled.InvalidateTherapist(context.Background(), testTherapist))
}
