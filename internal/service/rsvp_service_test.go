package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/internal/dto"
	"github.com/packportal/rsvp-service/internal/repository"
)

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	CreateRSVPFunc            func(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error)
	UpdateRSVPFunc            func(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error)
	DeleteRSVPFunc            func(ctx context.Context, id string) (*repository.LedgerResult, error)
	MarkPaymentCompletedFunc  func(ctx context.Context, id string) (*repository.LedgerResult, error)
	ReopenEventFunc           func(ctx context.Context, eventID string) (*domain.Event, error)
	GetRSVPFunc               func(ctx context.Context, id string) (*domain.RSVP, error)
	GetRSVPByEventAndUserFunc func(ctx context.Context, eventID, userID string) (*domain.RSVP, error)
	ListByUserFunc            func(ctx context.Context, userID string) ([]*repository.RSVPWithEvent, error)
	ListByEventFunc           func(ctx context.Context, eventID string) ([]*domain.RSVP, error)
	CountEventFunc            func(ctx context.Context, eventID string) (*domain.EventCount, error)
	BatchCountsFunc           func(ctx context.Context, eventIDs []string) (map[string]int, error)
}

func (m *MockLedgerRepository) CreateRSVP(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error) {
	if m.CreateRSVPFunc != nil {
		return m.CreateRSVPFunc(ctx, rsvp)
	}
	return nil, nil
}

func (m *MockLedgerRepository) UpdateRSVP(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error) {
	if m.UpdateRSVPFunc != nil {
		return m.UpdateRSVPFunc(ctx, rsvp)
	}
	return nil, nil
}

func (m *MockLedgerRepository) DeleteRSVP(ctx context.Context, id string) (*repository.LedgerResult, error) {
	if m.DeleteRSVPFunc != nil {
		return m.DeleteRSVPFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockLedgerRepository) MarkPaymentCompleted(ctx context.Context, id string) (*repository.LedgerResult, error) {
	if m.MarkPaymentCompletedFunc != nil {
		return m.MarkPaymentCompletedFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockLedgerRepository) ReopenEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	if m.ReopenEventFunc != nil {
		return m.ReopenEventFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *MockLedgerRepository) GetRSVP(ctx context.Context, id string) (*domain.RSVP, error) {
	if m.GetRSVPFunc != nil {
		return m.GetRSVPFunc(ctx, id)
	}
	return nil, domain.ErrRSVPNotFound
}

func (m *MockLedgerRepository) GetRSVPByEventAndUser(ctx context.Context, eventID, userID string) (*domain.RSVP, error) {
	if m.GetRSVPByEventAndUserFunc != nil {
		return m.GetRSVPByEventAndUserFunc(ctx, eventID, userID)
	}
	return nil, domain.ErrRSVPNotFound
}

func (m *MockLedgerRepository) ListByUser(ctx context.Context, userID string) ([]*repository.RSVPWithEvent, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockLedgerRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.RSVP, error) {
	if m.ListByEventFunc != nil {
		return m.ListByEventFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *MockLedgerRepository) CountEvent(ctx context.Context, eventID string) (*domain.EventCount, error) {
	if m.CountEventFunc != nil {
		return m.CountEventFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockLedgerRepository) BatchCounts(ctx context.Context, eventIDs []string) (map[string]int, error) {
	if m.BatchCountsFunc != nil {
		return m.BatchCountsFunc(ctx, eventIDs)
	}
	return nil, nil
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	GetByIDFunc func(ctx context.Context, id string) (*domain.Event, error)
	CreateFunc  func(ctx context.Context, event *domain.Event) error
}

func (m *MockEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockEventRepository) Create(ctx context.Context, event *domain.Event) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return nil
}

// MockAuditRepository records appended actions
type MockAuditRepository struct {
	mu      sync.Mutex
	actions []*domain.AdminAction
	err     error
}

func (m *MockAuditRepository) Append(ctx context.Context, action *domain.AdminAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.actions = append(m.actions, action)
	return nil
}

func (m *MockAuditRepository) recorded() []*domain.AdminAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AdminAction(nil), m.actions...)
}

// MockStatsCacheRepository records mirrored rollups
type MockStatsCacheRepository struct {
	mu      sync.Mutex
	rollups []*domain.StatsRollup
	err     error
}

func (m *MockStatsCacheRepository) SetStats(ctx context.Context, stats *domain.StatsRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rollups = append(m.rollups, stats)
	return nil
}

func (m *MockStatsCacheRepository) GetStats(ctx context.Context, eventID string) (*domain.StatsRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rollups) - 1; i >= 0; i-- {
		if m.rollups[i].EventID == eventID {
			return m.rollups[i], nil
		}
	}
	return nil, nil
}

func (m *MockStatsCacheRepository) last() *domain.StatsRollup {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rollups) == 0 {
		return nil
	}
	return m.rollups[len(m.rollups)-1]
}

var (
	_ repository.LedgerRepository     = (*MockLedgerRepository)(nil)
	_ repository.EventRepository      = (*MockEventRepository)(nil)
	_ repository.AuditRepository      = (*MockAuditRepository)(nil)
	_ repository.StatsCacheRepository = (*MockStatsCacheRepository)(nil)
)

func testRequester(userID string, caps ...domain.Capability) *domain.Requester {
	set := make(domain.CapabilitySet)
	for _, c := range caps {
		set.Grant(c)
	}
	return &domain.Requester{
		UserID:       userID,
		Email:        userID + "@example.com",
		Capabilities: set,
	}
}

func attendeeInputs(names ...string) []dto.AttendeeInput {
	out := make([]dto.AttendeeInput, 0, len(names))
	for _, n := range names {
		out = append(out, dto.AttendeeInput{Name: n, IsAdult: true})
	}
	return out
}

func createRequest(attendees ...string) *dto.CreateRSVPRequest {
	return &dto.CreateRSVPRequest{
		FamilyName: "Nakamura",
		Email:      "nakamura@example.com",
		Attendees:  attendeeInputs(attendees...),
	}
}

func capPtr(n int) *int {
	return &n
}

// newFakeService wires a service onto the in-memory ledger
func newFakeService(ledger *fakeLedger) (RSVPService, *MockAuditRepository, *MockStatsCacheRepository) {
	audit := &MockAuditRepository{}
	stats := &MockStatsCacheRepository{}
	svc := NewRSVPService(ledger, &fakeEvents{ledger: ledger}, audit, stats, nil)
	return svc, audit, stats
}

func TestCreateRSVP_Success(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", Title: "Spring Picnic", MaxCapacity: capPtr(50)})
	svc, _, stats := newFakeService(ledger)

	resp, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("Aki", "Ren"))

	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "event-1", resp.EventID)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, string(domain.PaymentNotRequired), resp.PaymentStatus)
	assert.Len(t, resp.Attendees, 2)

	rollup := stats.last()
	require.NotNil(t, rollup)
	assert.Equal(t, 2, rollup.AttendeeCount)
	assert.Equal(t, 1, rollup.RSVPCount)
}

func TestCreateRSVP_RequiresAuth(t *testing.T) {
	svc, _, _ := newFakeService(newFakeLedger())

	_, err := svc.CreateRSVP(context.Background(), nil, "event-1", createRequest("Aki"))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.CreateRSVP(context.Background(), testRequester(""), "event-1", createRequest("Aki"))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCreateRSVP_AttendeeBounds(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", Title: "Spring Picnic"})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	// empty attendee list
	_, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidAttendees)
	assert.Equal(t, "Must have 1-20 attendees", domain.ErrInvalidAttendees.Error())

	// 21 attendees
	names := make([]string, 21)
	for i := range names {
		names[i] = "Guest"
	}
	_, err = svc.CreateRSVP(context.Background(), requester, "event-1", createRequest(names...))
	assert.ErrorIs(t, err, domain.ErrInvalidAttendees)
	assert.True(t, domain.IsValidationError(err))
}

func TestCreateRSVP_MissingFields(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	svc, _, _ := newFakeService(ledger)

	req := createRequest("Aki")
	req.Email = "  "
	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", req)
	assert.ErrorIs(t, err, domain.ErrMissingFields)
}

func TestCreateRSVP_DuplicateUser(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", Title: "Spring Picnic"})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	_, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("Aki"))
	require.NoError(t, err)

	_, err = svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("Aki", "Ren"))
	assert.ErrorIs(t, err, domain.ErrAlreadyReserved)
	assert.True(t, domain.IsConflictError(err))
}

func TestCreateRSVP_CapacityRejectionMessage(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(5)})
	svc, _, _ := newFakeService(ledger)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1",
		createRequest("A", "B", "C", "D", "E"))
	require.NoError(t, err)

	_, err = svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1", createRequest("F"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEventFull)
	assert.Equal(t, "Event is at capacity. Only 0 spots remaining.", err.Error())

	var capErr *domain.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 0, capErr.Remaining)
}

func TestCreateRSVP_PartialFitRejected(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(5)})
	svc, _, _ := newFakeService(ledger)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1",
		createRequest("A", "B", "C"))
	require.NoError(t, err)

	// 3 taken, 2 remaining: a family of 4 is rejected whole
	_, err = svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1",
		createRequest("D", "E", "F", "G"))
	require.Error(t, err)
	assert.Equal(t, "Event is at capacity. Only 2 spots remaining.", err.Error())

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count.AttendeeCount)
}

func TestCreateRSVP_AutoCloseAtCapacity(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(2)})
	svc, _, _ := newFakeService(ledger)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A", "B"))
	require.NoError(t, err)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.True(t, count.Closed)
	require.NotNil(t, count.Remaining)
	assert.Equal(t, 0, *count.Remaining)

	// Full and auto-closed: the rejection reports capacity, not the
	// closed flag, so callers see the remaining-spots message
	_, err = svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1", createRequest("C"))
	assert.ErrorIs(t, err, domain.ErrEventFull)
}

func TestCreateRSVP_RetryAfterAutoClose(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(2)})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	_, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B"))
	require.NoError(t, err)

	// A client retry of the committed create lands after the auto-close.
	// It reports the existing reservation, not the closed event.
	_, err = svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B"))
	assert.ErrorIs(t, err, domain.ErrAlreadyReserved)
}

func TestCreateRSVP_PendingPartyCapacityChecked(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(2), PaymentRequired: true})
	svc, _, _ := newFakeService(ledger)

	// A payment-pending party does not count yet, but it is still
	// capacity-checked at submission; that check is what lets a later
	// payment completion be honored without a recheck
	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1",
		createRequest("A", "B", "C", "D", "E"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEventFull)
	assert.Equal(t, "Event is at capacity. Only 2 spots remaining.", err.Error())

	resp, err := svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1", createRequest("A", "B"))
	require.NoError(t, err)

	_, err = svc.MarkPaymentCompleted(context.Background(), testRequester("user-2"), resp.ID)
	require.NoError(t, err)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count.AttendeeCount)
}

func TestCreateRSVP_ConcurrentLastSpot(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(1)})
	svc, _, _ := newFakeService(ledger)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester := testRequester("user-" + string(rune('a'+i)))
			_, errs[i] = svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("Solo"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrEventFull)
		}
	}
	assert.Equal(t, 1, succeeded)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count.AttendeeCount)
}

func TestCreateRSVP_PaidEventPendingNotCounted(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(10), PaymentRequired: true, PaymentAmount: 2500, PaymentCurrency: "USD"})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	resp, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentPending), resp.PaymentStatus)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count.AttendeeCount)

	paid, err := svc.MarkPaymentCompleted(context.Background(), requester, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentCompleted), paid.PaymentStatus)

	count, err = svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count.AttendeeCount)

	// idempotent
	_, err = svc.MarkPaymentCompleted(context.Background(), requester, resp.ID)
	require.NoError(t, err)
	count, err = svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count.AttendeeCount)
}

func TestUpdateRSVP_OwnerOnly(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	svc, _, _ := newFakeService(ledger)

	resp, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("Aki"))
	require.NoError(t, err)

	update := &dto.UpdateRSVPRequest{Attendees: attendeeInputs("Aki", "Ren")}
	_, err = svc.UpdateRSVP(context.Background(), testRequester("user-2", domain.CapRSVPDeleteAny), resp.ID, update)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	updated, err := svc.UpdateRSVP(context.Background(), testRequester("user-1"), resp.ID, update)
	require.NoError(t, err)
	assert.Len(t, updated.Attendees, 2)
}

func TestUpdateRSVP_CapacityExcludesOwnContribution(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(5)})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	resp, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B", "C"))
	require.NoError(t, err)

	// growing 3 -> 5 fits because the old 3 no longer count
	updated, err := svc.UpdateRSVP(context.Background(), requester, resp.ID,
		&dto.UpdateRSVPRequest{Attendees: attendeeInputs("A", "B", "C", "D", "E")})
	require.NoError(t, err)
	assert.Len(t, updated.Attendees, 5)

	// growing past capacity is rejected and leaves the row untouched
	_, err = svc.UpdateRSVP(context.Background(), requester, resp.ID,
		&dto.UpdateRSVPRequest{Attendees: attendeeInputs("A", "B", "C", "D", "E", "F")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEventFull)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count.AttendeeCount)
}

func TestUpdateRSVP_AllowedOnClosedEvent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(3)})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	resp, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B", "C"))
	require.NoError(t, err)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	require.True(t, count.Closed)

	// shrinking own reservation still works after auto-close
	updated, err := svc.UpdateRSVP(context.Background(), requester, resp.ID,
		&dto.UpdateRSVPRequest{Attendees: attendeeInputs("A")})
	require.NoError(t, err)
	assert.Len(t, updated.Attendees, 1)

	// the event stays closed even though spots freed up
	count, err = svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.True(t, count.Closed)
	assert.Equal(t, 1, count.AttendeeCount)
}

func TestDeleteRSVP_OwnerAndOverride(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	svc, audit, _ := newFakeService(ledger)

	resp, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("Aki"))
	require.NoError(t, err)

	err = svc.DeleteRSVP(context.Background(), testRequester("user-2"), resp.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	// owner delete is not audited
	err = svc.DeleteRSVP(context.Background(), testRequester("user-1"), resp.ID)
	require.NoError(t, err)
	assert.Empty(t, audit.recorded())

	resp, err = svc.CreateRSVP(context.Background(), testRequester("user-3"), "event-1", createRequest("Ren"))
	require.NoError(t, err)

	// override delete is audited
	err = svc.DeleteRSVP(context.Background(), testRequester("admin-1", domain.CapRSVPDeleteAny), resp.ID)
	require.NoError(t, err)
	actions := audit.recorded()
	require.Len(t, actions, 1)
	assert.Equal(t, domain.AuditRSVPDeleted, actions[0].ActionType)
	assert.Equal(t, "admin-1", actions[0].ActorID)
	assert.Equal(t, resp.ID, actions[0].RSVPID)
}

func TestDeleteRSVP_NeverReopens(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(2)})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	resp, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B"))
	require.NoError(t, err)

	err = svc.DeleteRSVP(context.Background(), requester, resp.ID)
	require.NoError(t, err)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count.AttendeeCount)
	assert.True(t, count.Closed)

	_, err = svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1", createRequest("C"))
	assert.ErrorIs(t, err, domain.ErrEventClosed)
}

func TestReopenEvent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(1)})
	svc, audit, _ := newFakeService(ledger)

	_, err := svc.ReopenEvent(context.Background(), testRequester("user-1"), "event-1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	admin := testRequester("admin-1", domain.CapEventReopen)
	_, err = svc.ReopenEvent(context.Background(), admin, "event-1")
	assert.ErrorIs(t, err, domain.ErrEventNotClosed)

	_, err = svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A"))
	require.NoError(t, err)

	resp, err := svc.ReopenEvent(context.Background(), admin, "event-1")
	require.NoError(t, err)
	assert.False(t, resp.Closed)

	actions := audit.recorded()
	require.Len(t, actions, 1)
	assert.Equal(t, domain.AuditEventReopened, actions[0].ActionType)

	// reopening does not waive capacity
	_, err = svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1", createRequest("B"))
	assert.ErrorIs(t, err, domain.ErrEventFull)
}

func TestGetCount_UnlimitedOmitsRemaining(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	svc, _, _ := newFakeService(ledger)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A", "B"))
	require.NoError(t, err)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count.AttendeeCount)
	assert.Equal(t, 1, count.RSVPCount)
	assert.Nil(t, count.Remaining)
	assert.False(t, count.Closed)
}

func TestGetCount_UnknownEvent(t *testing.T) {
	svc, _, _ := newFakeService(newFakeLedger())

	_, err := svc.GetCount(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	assert.True(t, domain.IsNotFoundError(err))
}

func TestGetBatchCounts(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	ledger.addEvent(&domain.Event{ID: "event-2"})
	svc, _, _ := newFakeService(ledger)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A", "B", "C"))
	require.NoError(t, err)

	resp, err := svc.GetBatchCounts(context.Background(), &dto.BatchCountsRequest{
		EventIDs: []string{"event-1", "event-2", "event-unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Counts["event-1"])
	assert.Equal(t, 0, resp.Counts["event-2"])
	assert.Equal(t, 0, resp.Counts["event-unknown"])

	_, err = svc.GetBatchCounts(context.Background(), &dto.BatchCountsRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)
}

func TestListOwnRSVPs(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", Title: "Spring Picnic", Location: "Riverside Park"})
	ledger.addEvent(&domain.Event{ID: "event-2", Title: "Autumn Camp"})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	_, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A"))
	require.NoError(t, err)
	_, err = svc.CreateRSVP(context.Background(), requester, "event-2", createRequest("A", "B"))
	require.NoError(t, err)
	_, err = svc.CreateRSVP(context.Background(), testRequester("user-2"), "event-1", createRequest("X"))
	require.NoError(t, err)

	rows, err := svc.ListOwnRSVPs(context.Background(), requester)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "user-1", row.UserID)
		require.NotNil(t, row.Event)
		assert.NotEmpty(t, row.Event.Title)
	}
}

func TestListEventRSVPs_RequiresCapability(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	svc, _, _ := newFakeService(ledger)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A"))
	require.NoError(t, err)

	_, err = svc.ListEventRSVPs(context.Background(), testRequester("user-1"), "event-1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.True(t, domain.IsPermissionError(err))

	rows, err := svc.ListEventRSVPs(context.Background(), testRequester("organizer-1", domain.CapRSVPReadEvent), "event-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = svc.ListEventRSVPs(context.Background(), testRequester("organizer-1", domain.CapRSVPReadEvent), "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCreateEvent_RequiresCapability(t *testing.T) {
	ledger := newFakeLedger()
	svc, audit, _ := newFakeService(ledger)

	req := &dto.CreateEventRequest{Title: "Winter Social", MaxCapacity: capPtr(40)}

	_, err := svc.CreateEvent(context.Background(), testRequester("user-1"), req)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	event, err := svc.CreateEvent(context.Background(), testRequester("admin-1", domain.CapEventCreate), req)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "Winter Social", event.Title)

	actions := audit.recorded()
	require.Len(t, actions, 1)
	assert.Equal(t, domain.AuditEventCreated, actions[0].ActionType)
}

func TestCreateRSVP_StatsMirrorFailureIsNonFatal(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1"})
	audit := &MockAuditRepository{}
	stats := &MockStatsCacheRepository{err: errors.New("redis down")}
	svc := NewRSVPService(ledger, &fakeEvents{ledger: ledger}, audit, stats, nil)

	resp, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
}

func TestCreateRSVP_LedgerErrorPropagates(t *testing.T) {
	ledgerErr := errors.New("connection reset")
	ledger := &MockLedgerRepository{
		CreateRSVPFunc: func(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error) {
			return nil, ledgerErr
		},
	}
	svc := NewRSVPService(ledger, &MockEventRepository{}, &MockAuditRepository{}, &MockStatsCacheRepository{}, nil)

	_, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A"))
	assert.ErrorIs(t, err, ledgerErr)
}

func TestMarkPaymentCompleted_AutoCloses(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", MaxCapacity: capPtr(3), PaymentRequired: true})
	svc, _, _ := newFakeService(ledger)
	requester := testRequester("user-1")

	resp, err := svc.CreateRSVP(context.Background(), requester, "event-1", createRequest("A", "B", "C"))
	require.NoError(t, err)

	count, err := svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.False(t, count.Closed)

	_, err = svc.MarkPaymentCompleted(context.Background(), requester, resp.ID)
	require.NoError(t, err)

	count, err = svc.GetCount(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count.AttendeeCount)
	assert.True(t, count.Closed)
}

func TestMarkPaymentCompleted_OwnerOnly(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addEvent(&domain.Event{ID: "event-1", PaymentRequired: true})
	svc, _, _ := newFakeService(ledger)

	resp, err := svc.CreateRSVP(context.Background(), testRequester("user-1"), "event-1", createRequest("A"))
	require.NoError(t, err)

	// Moderation capabilities do not settle someone else's payment
	moderator := testRequester("admin-1", domain.CapRSVPDeleteAny)
	_, err = svc.MarkPaymentCompleted(context.Background(), moderator, resp.ID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = svc.MarkPaymentCompleted(context.Background(), testRequester("user-1"), resp.ID)
	require.NoError(t, err)
}
