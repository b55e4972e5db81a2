package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

const (
	testTherapist = "th-1"
	testClient    = "client-1"
	testDate      = "2030-03-04"
)

var (
	testNow    = time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	clientUser = models.Actor{UserID: testClient, UserType: models.UserTypeClient}
	therapistU = models.Actor{UserID: testTherapist, UserType: models.UserTypeTherapist}
)

type engine struct {
	store        *memStore
	booking      *BookingService
	lifecycle    *SessionLifecycleService
	ledger       *CreditLedgerService
	availability *AvailabilityService
	schedule     *ScheduleService
	effects      *SideEffectDispatcher
	cache        *AvailabilityCacheService
}

func newEngine(t *testing.T, lifecycleCfg LifecycleConfig) *engine {
	t.Helper()
	return buildEngine(t, lifecycleCfg, NewAvailabilityCacheService(nil, nil, 0, nil, false))
}

func buildEngine(t *testing.T, lifecycleCfg LifecycleConfig, cache *AvailabilityCacheService) *engine {
	t.Helper()
	store := newMemStore()
	store.addTherapist(models.Therapist{ID: testTherapist, DisplayName: "Dr. Rivera", Timezone: "UTC", IsActive: true, IsApproved: true})

	day, err := time.Parse(models.DateLayout, testDate)
	require.NoError(t, err)
	store.addRule(models.TherapistScheduleRule{
		TherapistID:            testTherapist,
		DayOfWeek:              int(day.Weekday()),
		StartTime:              "09:00",
		EndTime:                "17:00",
		SessionDurationMinutes: 30,
		SessionType:            models.SessionTypeVideo,
		IsActive:               true,
	})

	therapists := memTherapists{store}
	ledger := NewCreditLedgerService(store, store, nil, nil)
	ledger.now = func() time.Time { return testNow }
	availability := NewAvailabilityService(therapists, memRules{store}, store, store, cache, AvailabilityConfig{DefaultSessionMinutes: 60}, nil)
	effects := NewSideEffectDispatcher(LogVideoRoomProvisioner{BaseURL: "https://rooms.test"}, LogNotifier{}, store, cache, nil)

	deps := BookingDependencies{
		Therapists:   therapists,
		Sessions:     store,
		Events:       store,
		Availability: availability,
		Conflicts:    NewConflictService(store),
		Ledger:       ledger,
		Cache:        cache,
		Effects:      effects,
		Tx:           store,
	}
	atomic := AtomicConfig{Timeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond}
	booking := NewBookingService(deps, BookingConfig{HorizonDays: 90, Atomic: atomic})
	booking.now = func() time.Time { return testNow }
	lifecycleCfg.Atomic = atomic
	lifecycle := NewSessionLifecycleService(deps, lifecycleCfg)
	lifecycle.now = func() time.Time { return testNow }

	return &engine{
		store:        store,
		booking:      booking,
		lifecycle:    lifecycle,
		ledger:       ledger,
		availability: availability,
		schedule:     NewScheduleService(therapists, memRules{store}, memOverrides{store}, cache, nil, nil),
		effects:      effects,
		cache:        cache,
	}
}

func bookReq(start string, minutes int) dto.BookSessionRequest {
	return dto.BookSessionRequest{
		TherapistID:     testTherapist,
		Date:            testDate,
		StartTime:       start,
		DurationMinutes: minutes,
		SessionType:     "video",
	}
}

func at(clock string) time.Time {
	ts, err := time.Parse("2006-01-02 15:04", testDate+" "+clock)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestBookScenarioTouchingAndOverlapping(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "paid-old", UserID: testClient, CreditsBalance: 3, CreatedAt: testNow.Add(-72 * time.Hour)})
	e.store.addGrant(models.CreditGrant{ID: "free-new", UserID: testClient, CreditsBalance: 1, IsFreeCredit: true, CreatedAt: testNow.Add(-1 * time.Hour)})
	e.store.addGrant(models.CreditGrant{ID: "free-old", UserID: testClient, CreditsBalance: 1, IsFreeCredit: true, CreatedAt: testNow.Add(-48 * time.Hour)})
	ctx := context.Background()

	a, err := e.booking.Book(ctx, clientUser, bookReq("10:00", 30))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusScheduled, a.Status)
	require.NotNil(t, a.CreditUsedID)
	assert.Equal(t, "free-old", *a.CreditUsedID)
	assert.Equal(t, 0, e.store.grant("free-old").CreditsBalance)
	assert.Equal(t, models.CreditGrantExhausted, e.store.grant("free-old").Status)
	require.NotNil(t, a.Therapist)
	assert.Equal(t, "Dr. Rivera", a.Therapist.DisplayName)

	_, err = e.booking.Book(ctx, clientUser, bookReq("10:15", 30))
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	var conflict *models.BookingConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, a.ID, conflict.Conflicts[0].SessionID)
	assert.True(t, conflict.Conflicts[0].Start.Equal(at("10:00")))
	assert.True(t, conflict.Conflicts[0].End.Equal(at("10:30")))

	c, err := e.booking.Book(ctx, clientUser, bookReq("10:30", 30))
	require.NoError(t, err)
	assert.Equal(t, "free-new", *c.CreditUsedID)
	assert.Equal(t, 2, e.store.sessionCount())
}

func TestBookConcurrentRequestsExactlyOneWins(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	const n = 12
	for i := 0; i < n; i++ {
		user := clientFor(i)
		e.store.addGrant(models.CreditGrant{ID: "g-" + user, UserID: user, CreditsBalance: 1, CreatedAt: testNow.Add(-time.Hour)})
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := models.Actor{UserID: clientFor(i), UserType: models.UserTypeClient}
			_, err := e.booking.Book(context.Background(), actor, bookReq("11:00", 60))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case appErrors.IsCode(err, appErrors.ErrConflict.Code):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, e.store.sessionCount())
	spent := 0
	for i := 0; i < n; i++ {
		spent += 1 - e.store.grant("g-"+clientFor(i)).CreditsBalance
	}
	assert.Equal(t, 1, spent)
}

func clientFor(i int) string {
	return "client-" + string(rune('a'+i))
}

func TestBookExclusionConstraintBackstopsStaleReads(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 2, CreatedAt: testNow})
	e.store.addSession(models.Session{
		ID: "existing", UserID: "other", TherapistID: testTherapist,
		StartTime: at("13:00"), EndTime: at("14:00"), DurationMinutes: 60,
		SessionType: models.SessionTypeVideo, Status: models.SessionStatusScheduled,
	})
	e.store.hideBlocking = true

	_, err := e.booking.Book(context.Background(), clientUser, bookReq("13:30", 30))
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	assert.Equal(t, 2, e.store.grant("g1").CreditsBalance, "reservation rolled back with the insert")
	assert.Equal(t, 1, e.store.sessionCount())
}

func TestBookInsufficientCreditsCreatesNothing(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	expired := testNow.Add(-time.Hour)
	e.store.addGrant(models.CreditGrant{ID: "expired", UserID: testClient, CreditsBalance: 5, ExpiresAt: &expired, CreatedAt: testNow.Add(-96 * time.Hour)})
	e.store.addGrant(models.CreditGrant{ID: "empty", UserID: testClient, CreditsBalance: 0, Status: models.CreditGrantExhausted})

	_, err := e.booking.Book(context.Background(), clientUser, bookReq("09:00", 30))
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInsufficientCredit.Code))
	assert.False(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	assert.Equal(t, 0, e.store.sessionCount())
	assert.Empty(t, e.store.events)
}

func TestBookRejectsOutsideAvailability(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 1, CreatedAt: testNow})

	_, err := e.booking.Book(context.Background(), clientUser, bookReq("16:45", 30))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrSlotUnavailable.Code))

	req := bookReq("10:00", 30)
	req.SessionType = "chat"
	_, err = e.booking.Book(context.Background(), clientUser, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrSlotUnavailable.Code))
	assert.Equal(t, 1, e.store.grant("g1").CreditsBalance)
}

func TestBookSpansContiguousWindows(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 1, CreatedAt: testNow})

	session, err := e.booking.Book(context.Background(), clientUser, bookReq("15:00", 90))
	require.NoError(t, err)
	assert.True(t, session.EndTime.Equal(at("16:30")))
}

func TestBookValidation(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	ctx := context.Background()

	_, err := e.booking.Book(ctx, therapistU, bookReq("10:00", 30))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	req := bookReq("10:00", 30)
	req.TherapistID = ""
	_, err = e.booking.Book(ctx, clientUser, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	req = bookReq("10:00", 30)
	req.Date = "2030-02-01"
	_, err = e.booking.Book(ctx, clientUser, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code), "past date")

	req = bookReq("10:00", 30)
	req.TherapistID = "missing"
	_, err = e.booking.Book(ctx, clientUser, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	e.store.addTherapist(models.Therapist{ID: "pending", Timezone: "UTC", IsActive: true})
	req.TherapistID = "pending"
	_, err = e.booking.Book(ctx, clientUser, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code), "unapproved therapist")
}

func TestBookDailyCapacity(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.rules[0].MaxSessions = 1
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 2, CreatedAt: testNow})

	_, err := e.booking.Book(context.Background(), clientUser, bookReq("09:00", 30))
	require.NoError(t, err)
	_, err = e.booking.Book(context.Background(), clientUser, bookReq("14:00", 30))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrSlotUnavailable.Code))
	assert.Equal(t, 1, e.store.grant("g1").CreditsBalance)
}

func TestBookRetriesTransientFailures(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 1, CreatedAt: testNow})
	e.store.transientFailures = 2

	_, err := e.booking.Book(context.Background(), clientUser, bookReq("09:00", 30))
	require.NoError(t, err)
	assert.Equal(t, 3, e.store.txCount)
}

func TestBookSurfacesTransientAfterRetries(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 1, CreatedAt: testNow})
	e.store.transientFailures = 10

	_, err := e.booking.Book(context.Background(), clientUser, bookReq("09:00", 30))
	require.Error(t, err)
	assert.True(t, appErrors.Retryable(err))
	assert.Equal(t, 3, e.store.txCount)
	assert.Equal(t, 0, e.store.sessionCount())
}

func TestBookProvisionsVideoRoomInline(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 1, CreatedAt: testNow})

	session, err := e.booking.Book(context.Background(), clientUser, bookReq("09:00", 30))
	require.NoError(t, err)
	stored := e.store.session(session.ID)
	require.NotNil(t, stored.VideoRoomURL)
	assert.Equal(t, "https://rooms.test/"+session.ID, *stored.VideoRoomURL)

	events := e.store.eventsFor(session.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.CreditEffectReserved, events[0].CreditEffect)
}

func TestCreateDeferredSkipsCreditAndChecksConflicts(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	req := dto.CreateDeferredSessionRequest{
		ClientID:         testClient,
		Date:             testDate,
		StartTime:        "18:00",
		DurationMinutes:  45,
		SessionType:      "audio",
		RequiresApproval: true,
	}

	session, err := e.booking.CreateDeferred(context.Background(), therapistU, req)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPendingApproval, session.Status)
	assert.False(t, session.HasCredit())

	req.StartTime = "18:30"
	_, err = e.booking.CreateDeferred(context.Background(), therapistU, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	_, err = e.booking.CreateDeferred(context.Background(), clientUser, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestGetAndListRespectOwnership(t *testing.T) {
	e := newEngine(t, LifecycleConfig{})
	e.store.addGrant(models.CreditGrant{ID: "g1", UserID: testClient, CreditsBalance: 2, CreatedAt: testNow})
	ctx := context.Background()
	session, err := e.booking.Book(ctx, clientUser, bookReq("09:00", 30))
	require.NoError(t, err)

	got, err := e.booking.Get(ctx, therapistU, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = e.booking.Get(ctx, models.Actor{UserID: "stranger", UserType: models.UserTypeClient}, session.ID)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	_, err = e.booking.Get(ctx, clientUser, "missing")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	items, page, err := e.booking.ListMine(ctx, clientUser, dto.SessionListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "Dr. Rivera", items[0].Therapist.DisplayName)

	items, _, err = e.booking.ListMine(ctx, models.Actor{UserID: "stranger", UserType: models.UserTypeClient}, dto.SessionListQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, _, err = e.booking.ListTherapist(ctx, clientUser, dto.SessionListQuery{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestMatchWindow(t *testing.T) {
	windows := []models.AvailabilityWindow{
		{Start: at("09:00"), End: at("09:30"), SessionType: models.SessionTypeVideo},
		{Start: at("09:30"), End: at("10:00"), SessionType: models.SessionTypeVideo},
		{Start: at("10:30"), End: at("11:00"), SessionType: models.SessionTypeVideo},
	}
	_, ok := matchWindow(windows, at("09:00"), at("10:00"), models.SessionTypeVideo)
	assert.True(t, ok)
	_, ok = matchWindow(windows, at("09:15"), at("09:45"), models.SessionTypeVideo)
	assert.True(t, ok)
	_, ok = matchWindow(windows, at("09:30"), at("10:30"), models.SessionTypeVideo)
	assert.False(t, ok, "gap between windows")
	_, ok = matchWindow(windows, at("09:00"), at("09:30"), models.SessionTypeAudio)
	assert.False(t, ok)
}
