package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/events"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/stretchr/testify/require"
)

// memoryRepo stores rooms as JSON so callers never share memory with it.
type memoryRepo struct {
	mu    sync.Mutex
	order []string
	rooms map[string][]byte

	// conflicts makes the next n SaveRoom calls fail with ErrVersionConflict.
	conflicts int
	saves     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rooms: make(map[string][]byte)}
}

func (r *memoryRepo) CreateRoom(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room.Version = 1
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	r.rooms[room.ID] = data
	r.order = append(r.order, room.ID)
	return nil
}

func (r *memoryRepo) GetRoom(_ context.Context, id string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r *memoryRepo) load(id string) (*domain.Room, error) {
	data, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *memoryRepo) SaveRoom(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		return ErrVersionConflict
	}

	stored, err := r.load(room.ID)
	if err != nil {
		return err
	}
	if stored.Version != room.Version {
		return ErrVersionConflict
	}

	room.Version++
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	r.rooms[room.ID] = data
	return nil
}

func (r *memoryRepo) ListRooms(_ context.Context, filters RoomFilters) ([]*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.Room
	for _, id := range r.order {
		room, err := r.load(id)
		if err != nil {
			return nil, err
		}
		if filters.Status != nil && room.Status != *filters.Status {
			continue
		}
		if filters.Severity != nil && room.Severity != *filters.Severity {
			continue
		}
		if filters.ExcludeResolved && room.Status == domain.RoomStatusResolved {
			continue
		}
		matched = append(matched, room)
	}

	if filters.Offset >= len(matched) {
		return []*domain.Room{}, nil
	}
	matched = matched[filters.Offset:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

// put stores a hand-built room, bypassing CreateRoom defaults.
func (r *memoryRepo) put(t *testing.T, room *domain.Room) {
	t.Helper()
	require.NoError(t, r.CreateRoom(context.Background(), room))
}

func (r *memoryRepo) failNextSaves(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = n
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

type fakeEvents map[string]*domain.GeopoliticalEvent

func (f fakeEvents) GetEvent(_ context.Context, id string) (*domain.GeopoliticalEvent, error) {
	e, ok := f[id]
	if !ok {
		return nil, events.ErrEventNotFound
	}
	return e, nil
}

type fakeProfiles struct {
	profiles []domain.StakeholderProfile
	err      error
}

func (f fakeProfiles) ListProfiles(context.Context) ([]domain.StakeholderProfile, error) {
	return f.profiles, f.err
}

// fakeScorer returns scores by profile id; missing profiles fail.
type fakeScorer map[string]float64

func (f fakeScorer) Score(_ context.Context, p domain.StakeholderProfile, _ *domain.GeopoliticalEvent) (float64, error) {
	score, ok := f[p.ID]
	if !ok {
		return 0, errors.New("scorer unavailable")
	}
	return score, nil
}

// recordingSender records every message. Recipients listed in fail are
// rejected.
type recordingSender struct {
	channel domain.ChannelType
	fail    map[string]bool
	onSend  func()

	mu   sync.Mutex
	msgs []notifications.Message
}

func (s *recordingSender) Type() domain.ChannelType { return s.channel }

func (s *recordingSender) Send(_ context.Context, msg notifications.Message) (string, error) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend()
	}

	for _, r := range msg.Recipients {
		if r.Email == "" && s.channel == domain.ChannelTypeEmail {
			return "", notifications.ErrNoRecipients
		}
		if s.fail[r.Email] {
			return "", errors.New("mailbox unavailable")
		}
	}
	return "ref-" + msg.CommunicationID, nil
}

func (s *recordingSender) messages() []notifications.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Message(nil), s.msgs...)
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []domain.TimelineEntry
}

func (p *recordingPublisher) PublishTimeline(_ context.Context, _ *domain.Room, entries []domain.TimelineEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entries...)
	return nil
}

func (p *recordingPublisher) types() []domain.TimelineEntryType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.TimelineEntryType, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Type)
	}
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	service *Service
	repo    *memoryRepo
	email   *recordingSender
	webhook *recordingSender
	clock   *fakeClock
}

const testEventID = "evt-hormuz"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newMemoryRepo()
	email := &recordingSender{channel: domain.ChannelTypeEmail, fail: map[string]bool{}}
	webhook := &recordingSender{channel: domain.ChannelTypeWebhook}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	evts := fakeEvents{
		testEventID: {
			ID:       testEventID,
			Title:    "Strait of Hormuz closure",
			Severity: "high",
			Regions:  []string{"middle-east"},
		},
	}
	profiles := fakeProfiles{profiles: []domain.StakeholderProfile{
		{ID: "energy"}, {ID: "shipping"}, {ID: "retail"},
	}}
	scorer := fakeScorer{"energy": 0.3, "shipping": 0.65}

	svc := NewService(repo, evts, profiles, scorer, notifications.NewDispatcher(time.Second, email, webhook))
	svc.now = clock.Now

	return &testEnv{
		service: svc,
		repo:    repo,
		email:   email,
		webhook: webhook,
		clock:   clock,
	}
}

func testStakeholders() []domain.Stakeholder {
	return []domain.Stakeholder{
		{
			ID:                   "ceo",
			Name:                 "Dana CEO",
			Email:                "ceo@example.com",
			Role:                 "executive",
			NotificationChannels: []domain.ChannelType{domain.ChannelTypeEmail},
			EscalationLevel:      3,
			IsActive:             true,
		},
		{
			ID:                   "ops",
			Name:                 "Ops Lead",
			Email:                "ops@example.com",
			Role:                 "operations",
			NotificationChannels: []domain.ChannelType{domain.ChannelTypeEmail, domain.ChannelTypeWebhook},
			EscalationLevel:      1,
			IsActive:             true,
		},
		{
			ID:                   "legal",
			Name:                 "Legal",
			Email:                "legal@example.com",
			Role:                 "counsel",
			NotificationChannels: []domain.ChannelType{domain.ChannelTypeEmail},
			EscalationLevel:      2,
			IsActive:             false,
		},
	}
}

func (e *testEnv) createRoom(t *testing.T) *domain.Room {
	t.Helper()
	room, err := e.service.CreateRoom(context.Background(), CreateRoomInput{
		EventID:      testEventID,
		Stakeholders: testStakeholders(),
	}, "user-1")
	require.NoError(t, err)
	return room
}

func (e *testEnv) reload(t *testing.T, id string) *domain.Room {
	t.Helper()
	room, err := e.repo.GetRoom(context.Background(), id)
	require.NoError(t, err)
	return room
}
