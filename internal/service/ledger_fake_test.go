package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/internal/repository"
)

// fakeLedger is an in-memory LedgerRepository honoring the same atomic
// contract as the Postgres implementation: one mutex plays the role of
// the per-event row lock, and every mutation recomputes the countable
// total from the stored reservations before deciding.
type fakeLedger struct {
	mu     sync.Mutex
	events map[string]*domain.Event
	rsvps  map[string]*domain.RSVP
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		events: make(map[string]*domain.Event),
		rsvps:  make(map[string]*domain.RSVP),
	}
}

func (f *fakeLedger) addEvent(event *domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	f.events[event.ID] = event
}

// countableTotal scans the stored reservations, excluding one id
func (f *fakeLedger) countableTotal(eventID string, paymentRequired bool, excludeID string) (attendees, rsvps int) {
	for _, r := range f.rsvps {
		if r.EventID != eventID || r.ID == excludeID {
			continue
		}
		if !r.Countable(paymentRequired) {
			continue
		}
		attendees += r.AttendeeCount()
		rsvps++
	}
	return attendees, rsvps
}

func (f *fakeLedger) CreateRSVP(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[rsvp.EventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	// Duplicate before capacity before closed, matching the Postgres ledger
	for _, r := range f.rsvps {
		if r.EventID == rsvp.EventID && r.UserID == rsvp.UserID {
			return nil, domain.ErrAlreadyReserved
		}
	}

	total, rsvpCount := f.countableTotal(event.ID, event.PaymentRequired, "")
	rsvp.PaymentStatus = domain.InitialPaymentStatus(event.PaymentRequired)
	countable := rsvp.Countable(event.PaymentRequired)
	n := rsvp.AttendeeCount()

	if !event.Fits(total, n) {
		return nil, domain.NewCapacityError(event.Remaining(total))
	}
	if event.Closed {
		return nil, domain.ErrEventClosed
	}

	if rsvp.ID == "" {
		rsvp.ID = uuid.New().String()
	}
	now := time.Now()
	rsvp.CreatedAt = now
	rsvp.UpdatedAt = now
	stored := *rsvp
	f.rsvps[rsvp.ID] = &stored

	newCount := total
	if countable {
		newCount += n
		rsvpCount++
	}
	justClosed := !event.Closed && event.ShouldClose(newCount)
	event.Closed = event.Closed || justClosed
	event.CachedCount = newCount

	return &repository.LedgerResult{
		RSVP:        rsvp,
		CachedCount: newCount,
		RSVPCount:   rsvpCount,
		Closed:      event.Closed,
		JustClosed:  justClosed,
	}, nil
}

func (f *fakeLedger) UpdateRSVP(ctx context.Context, rsvp *domain.RSVP) (*repository.LedgerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.rsvps[rsvp.ID]
	if !ok {
		return nil, domain.ErrRSVPNotFound
	}
	event := f.events[existing.EventID]
	if event == nil {
		return nil, domain.ErrEventNotFound
	}

	total, rsvpCount := f.countableTotal(event.ID, event.PaymentRequired, existing.ID)
	countable := existing.Countable(event.PaymentRequired)
	n := len(rsvp.Attendees)

	if !event.Fits(total, n) {
		return nil, domain.NewCapacityError(event.Remaining(total))
	}

	existing.Attendees = rsvp.Attendees
	if rsvp.FamilyName != "" {
		existing.FamilyName = rsvp.FamilyName
	}
	if rsvp.Email != "" {
		existing.Email = rsvp.Email
	}
	existing.Phone = rsvp.Phone
	existing.DietaryRestrictions = rsvp.DietaryRestrictions
	existing.SpecialNeeds = rsvp.SpecialNeeds
	existing.Notes = rsvp.Notes
	existing.UpdatedAt = time.Now()

	newCount := total
	if countable {
		newCount += n
		rsvpCount++
	}
	justClosed := !event.Closed && event.ShouldClose(newCount)
	event.Closed = event.Closed || justClosed
	event.CachedCount = newCount

	updated := *existing
	return &repository.LedgerResult{
		RSVP:        &updated,
		CachedCount: newCount,
		RSVPCount:   rsvpCount,
		Closed:      event.Closed,
		JustClosed:  justClosed,
	}, nil
}

func (f *fakeLedger) DeleteRSVP(ctx context.Context, id string) (*repository.LedgerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.rsvps[id]
	if !ok {
		return nil, domain.ErrRSVPNotFound
	}
	event := f.events[existing.EventID]
	if event == nil {
		return nil, domain.ErrEventNotFound
	}

	delete(f.rsvps, id)
	total, rsvpCount := f.countableTotal(event.ID, event.PaymentRequired, "")
	event.CachedCount = total

	removed := *existing
	return &repository.LedgerResult{
		RSVP:        &removed,
		CachedCount: total,
		RSVPCount:   rsvpCount,
		Closed:      event.Closed,
	}, nil
}

func (f *fakeLedger) MarkPaymentCompleted(ctx context.Context, id string) (*repository.LedgerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.rsvps[id]
	if !ok {
		return nil, domain.ErrRSVPNotFound
	}
	event := f.events[existing.EventID]
	if event == nil {
		return nil, domain.ErrEventNotFound
	}

	if existing.PaymentStatus != domain.PaymentCompleted {
		existing.PaymentStatus = domain.PaymentCompleted
		existing.UpdatedAt = time.Now()
	}

	total, rsvpCount := f.countableTotal(event.ID, event.PaymentRequired, "")
	justClosed := !event.Closed && event.ShouldClose(total)
	event.Closed = event.Closed || justClosed
	event.CachedCount = total

	paid := *existing
	return &repository.LedgerResult{
		RSVP:        &paid,
		CachedCount: total,
		RSVPCount:   rsvpCount,
		Closed:      event.Closed,
		JustClosed:  justClosed,
	}, nil
}

func (f *fakeLedger) ReopenEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	if !event.Closed {
		return nil, domain.ErrEventNotClosed
	}
	event.Closed = false
	reopened := *event
	return &reopened, nil
}

func (f *fakeLedger) GetRSVP(ctx context.Context, id string) (*domain.RSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rsvp, ok := f.rsvps[id]
	if !ok {
		return nil, domain.ErrRSVPNotFound
	}
	copied := *rsvp
	return &copied, nil
}

func (f *fakeLedger) GetRSVPByEventAndUser(ctx context.Context, eventID, userID string) (*domain.RSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rsvps {
		if r.EventID == eventID && r.UserID == userID {
			copied := *r
			return &copied, nil
		}
	}
	return nil, domain.ErrRSVPNotFound
}

func (f *fakeLedger) ListByUser(ctx context.Context, userID string) ([]*repository.RSVPWithEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var results []*repository.RSVPWithEvent
	for _, r := range f.rsvps {
		if r.UserID != userID {
			continue
		}
		copied := *r
		row := &repository.RSVPWithEvent{RSVP: &copied}
		if event := f.events[r.EventID]; event != nil {
			row.Event = event.Summary()
		}
		results = append(results, row)
	}
	return results, nil
}

func (f *fakeLedger) ListByEvent(ctx context.Context, eventID string) ([]*domain.RSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var results []*domain.RSVP
	for _, r := range f.rsvps {
		if r.EventID == eventID {
			copied := *r
			results = append(results, &copied)
		}
	}
	return results, nil
}

func (f *fakeLedger) CountEvent(ctx context.Context, eventID string) (*domain.EventCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	attendees, rsvps := f.countableTotal(eventID, event.PaymentRequired, "")
	return &domain.EventCount{EventID: eventID, AttendeeCount: attendees, RSVPCount: rsvps}, nil
}

func (f *fakeLedger) BatchCounts(ctx context.Context, eventIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[string]int, len(eventIDs))
	for _, id := range eventIDs {
		counts[id] = 0
		if event, ok := f.events[id]; ok {
			attendees, _ := f.countableTotal(id, event.PaymentRequired, "")
			counts[id] = attendees
		}
	}
	return counts, nil
}

// fakeEvents adapts the fake ledger's event map to EventRepository
type fakeEvents struct {
	ledger *fakeLedger
}

func (f *fakeEvents) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()

	event, ok := f.ledger.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (f *fakeEvents) Create(ctx context.Context, event *domain.Event) error {
	f.ledger.addEvent(event)
	return nil
}

var (
	_ repository.LedgerRepository = (*fakeLedger)(nil)
	_ repository.EventRepository  = (*fakeEvents)(nil)
)
