package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/internal/repository"
	"github.com/noah-isme/therapy-booking-api/pkg/jobs"
)

// memStore is a transactional in-memory stand-in for the Postgres repositories. Transactions are
// serialised by txMu and roll back by restoring a snapshot, mirroring advisory locks plus
// sessions_no_overlap.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	therapists map[string]*models.Therapist
	rules      []models.TherapistScheduleRule
	overrides  map[string]models.AvailabilityOverride
	sessions   map[string]models.Session
	grants     map[string]models.CreditGrant
	events     []models.SessionEvent

	// hideBlocking makes conflict reads return nothing, simulating a stale read that only the
	// exclusion constraint catches.
	hideBlocking bool
	// transientFailures fails that many transactions with repository.ErrTransient.
	transientFailures int
	txCount           int
}

func newMemStore() *memStore {
	return &memStore{
		therapists: map[string]*models.Therapist{},
		overrides:  map[string]models.AvailabilityOverride{},
		sessions:   map[string]models.Session{},
		grants:     map[string]models.CreditGrant{},
	}
}

type memSnapshot struct {
	rules     []models.TherapistScheduleRule
	overrides map[string]models.AvailabilityOverride
	sessions  map[string]models.Session
	grants    map[string]models.CreditGrant
	events    []models.SessionEvent
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		rules:     append([]models.TherapistScheduleRule(nil), m.rules...),
		overrides: make(map[string]models.AvailabilityOverride, len(m.overrides)),
		sessions:  make(map[string]models.Session, len(m.sessions)),
		grants:    make(map[string]models.CreditGrant, len(m.grants)),
		events:    append([]models.SessionEvent(nil), m.events...),
	}
	for k, v := range m.overrides {
		snap.overrides[k] = v
	}
	for k, v := range m.sessions {
		snap.sessions[k] = v
	}
	for k, v := range m.grants {
		snap.grants[k] = v
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = snap.rules
	m.overrides = snap.overrides
	m.sessions = snap.sessions
	m.grants = snap.grants
	m.events = snap.events
}

// WithinTx implements txRunner.
func (m *memStore) WithinTx(ctx context.Context, _ []string, fn func(ctx context.Context, exec sqlx.ExtContext) error) error {
	m.mu.Lock()
	m.txCount++
	if m.transientFailures > 0 {
		m.transientFailures--
		m.mu.Unlock()
		return fmt.Errorf("%w: serialization failure", repository.ErrTransient)
	}
	m.mu.Unlock()

	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, nil); err != nil {
		m.restore(snap)
		return repository.ClassifyError(err)
	}
	return nil
}

func (m *memStore) addTherapist(t models.Therapist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.therapists[t.ID] = &t
}

func (m *memStore) addRule(r models.TherapistScheduleRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.rules = append(m.rules, r)
}

func (m *memStore) addGrant(g models.CreditGrant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.Status == "" {
		g.Status = models.CreditGrantActive
	}
	m.grants[g.ID] = g
}

func (m *memStore) addSession(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *memStore) grant(id string) models.CreditGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[id]
}

func (m *memStore) session(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) eventsFor(sessionID string) []models.SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SessionEvent{}
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// therapist directory

func (m *memStore) FindByIDs(_ context.Context, ids []string) (map[string]*models.Therapist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*models.Therapist{}
	for _, id := range ids {
		if t, ok := m.therapists[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

type memTherapists struct{ *memStore }

func (t memTherapists) FindByID(_ context.Context, id string) (*models.Therapist, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	therapist, ok := t.therapists[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *therapist
	return &found, nil
}

// schedule rules and overrides

type memRules struct{ *memStore }

func (r memRules) ListByTherapistAndDay(_ context.Context, _ sqlx.ExtContext, therapistID string, day int) ([]models.TherapistScheduleRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.TherapistScheduleRule{}
	for _, rule := range r.rules {
		if rule.TherapistID == therapistID && rule.DayOfWeek == day && rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r memRules) ListByTherapist(_ context.Context, therapistID string) ([]models.TherapistScheduleRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.TherapistScheduleRule{}
	for _, rule := range r.rules {
		if rule.TherapistID == therapistID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r memRules) FindByID(_ context.Context, therapistID, id string) (*models.TherapistScheduleRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id && rule.TherapistID == therapistID {
			found := rule
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memRules) Create(_ context.Context, rule *models.TherapistScheduleRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, *rule)
	return nil
}

func (r memRules) Update(_ context.Context, rule *models.TherapistScheduleRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID && r.rules[i].TherapistID == rule.TherapistID {
			r.rules[i] = *rule
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r memRules) Delete(_ context.Context, therapistID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id && r.rules[i].TherapistID == therapistID {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func overrideKey(therapistID, date string) string { return therapistID + "|" + date }

func (m *memStore) FindByTherapistAndDate(_ context.Context, _ sqlx.ExtContext, therapistID, date string) (*models.AvailabilityOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[overrideKey(therapistID, date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (m *memStore) ListByTherapistRange(_ context.Context, therapistID, from, to string) ([]models.AvailabilityOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AvailabilityOverride{}
	for _, o := range m.overrides {
		date := o.OverrideDate.Format(models.DateLayout)
		if o.TherapistID == therapistID && date >= from && date <= to {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverrideDate.Before(out[j].OverrideDate) })
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, o *models.AvailabilityOverride) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey(o.TherapistID, o.OverrideDate.Format(models.DateLayout))] = *o
	return nil
}

type memOverrides struct{ *memStore }

func (o memOverrides) Delete(_ context.Context, therapistID, date string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := overrideKey(therapistID, date)
	if _, ok := o.overrides[key]; !ok {
		return sql.ErrNoRows
	}
	delete(o.overrides, key)
	return nil
}

// sessions

func (m *memStore) ListBlockingInRange(_ context.Context, _ sqlx.ExtContext, therapistID string, start, end time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	if m.hideBlocking {
		return out, nil
	}
	for _, s := range m.sessions {
		if s.TherapistID == therapistID && s.Status.IsBlocking() && models.Overlaps(s.StartTime, s.EndTime, start, end) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) CountBlockingStartingBetween(_ context.Context, _ sqlx.ExtContext, therapistID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sessions {
		if s.TherapistID == therapistID && s.Status.IsBlocking() && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Create(_ context.Context, _ sqlx.ExtContext, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TherapistID == session.TherapistID && s.Status.IsBlocking() && session.Status.IsBlocking() &&
			models.Overlaps(s.StartTime, s.EndTime, session.StartTime, session.EndTime) {
			return fmt.Errorf("insert session: %w", repository.ErrExclusionViolation)
		}
	}
	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now
	m.sessions[session.ID] = *session
	return nil
}

func (m *memStore) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memStore) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	return m.FindByID(ctx, exec, id)
}

func (m *memStore) UpdateStatus(_ context.Context, _ sqlx.ExtContext, id string, from, to models.SessionStatus, joinedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return sql.ErrNoRows
	}
	s.Status = to
	if joinedAt != nil {
		s.JoinedAt = joinedAt
	}
	m.sessions[id] = s
	return nil
}

func (m *memStore) AttachCredit(_ context.Context, _ sqlx.ExtContext, id, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.HasCredit() {
		return sql.ErrNoRows
	}
	s.CreditUsedID = &grantID
	m.sessions[id] = s
	return nil
}

func (m *memStore) DetachCredit(_ context.Context, _ sqlx.ExtContext, id, grantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.HasCredit() || *s.CreditUsedID != grantID {
		return false, nil
	}
	s.CreditUsedID = nil
	m.sessions[id] = s
	return true, nil
}

func (m *memStore) SetVideoRoom(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.VideoRoomURL = &url
	m.sessions[id] = s
	return nil
}

func (m *memStore) List(_ context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.TherapistID != "" && s.TherapistID != filter.TherapistID {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *memStore) ListForTherapistRange(_ context.Context, therapistID string, from, to time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.TherapistID == therapistID && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) ListCreditUsage(_ context.Context, userID string) ([]dto.CreditUsageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []dto.CreditUsageEntry{}
	for _, s := range m.sessions {
		if s.UserID == userID && s.HasCredit() {
			out = append(out, dto.CreditUsageEntry{SessionID: s.ID, GrantID: *s.CreditUsedID, TherapistID: s.TherapistID, StartTime: s.StartTime, Status: s.Status})
		}
	}
	return out, nil
}

func (m *memStore) ListUnjoinedDeferred(_ context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if (s.Status == models.SessionStatusPendingApproval || s.Status == models.SessionStatusScheduled) && !s.HasCredit() && s.StartTime.Before(cutoff) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListUnattended(_ context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusScheduled && s.HasCredit() && s.EndTime.Before(cutoff) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Append(_ context.Context, _ sqlx.ExtContext, event *models.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.CreatedAt = time.Now().UTC()
	m.events = append(m.events, *event)
	return nil
}

// credit grants

func (m *memStore) ListSpendableForUpdate(_ context.Context, _ sqlx.ExtContext, userID string, now time.Time) ([]models.CreditGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CreditGrant{}
	for _, g := range m.grants {
		if g.UserID == userID && g.Spendable(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) Decrement(_ context.Context, _ sqlx.ExtContext, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok || g.CreditsBalance <= 0 || g.Status != models.CreditGrantActive {
		return sql.ErrNoRows
	}
	g.CreditsBalance--
	if g.CreditsBalance == 0 {
		g.Status = models.CreditGrantExhausted
	}
	m.grants[grantID] = g
	return nil
}

func (m *memStore) Increment(_ context.Context, _ sqlx.ExtContext, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok {
		return sql.ErrNoRows
	}
	g.CreditsBalance++
	if g.Status == models.CreditGrantExhausted {
		g.Status = models.CreditGrantActive
	}
	m.grants[grantID] = g
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]models.CreditGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CreditGrant{}
	for _, g := range m.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, g := range m.grants {
		if g.Status == models.CreditGrantActive && g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			g.Status = models.CreditGrantExpired
			m.grants[id] = g
			count++
		}
	}
	return count, nil
}

// totalCredits sums balances plus credits held by sessions for the user.
func (m *memStore) totalCredits(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, g := range m.grants {
		if g.UserID == userID {
			total += g.CreditsBalance
		}
	}
	for _, s := range m.sessions {
		if s.UserID == userID && s.HasCredit() {
			total++
		}
	}
	return total
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (r *recordingEnqueuer) Enqueue(job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job.Type)
	return nil
}
