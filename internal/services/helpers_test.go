package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"cater/internal/database"
	"cater/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedCustomer(t *testing.T, db *gorm.DB, name, phone string, optIn bool) *domain.Customer {
	t.Helper()
	c := &domain.Customer{Name: name, Phone: phone, WhatsAppOptIn: optIn}
	require.NoError(t, db.Create(c).Error)
	return c
}

func seedBooking(t *testing.T, db *gorm.DB, c *domain.Customer, state domain.BookingState, eventDate time.Time) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		CustomerID: c.ID,
		EventName:  "Event for " + c.Name,
		GuestCount: 50,
		State:      state,
		EventDate:  eventDate.UTC(),
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func activateConsole(t *testing.T, db *gorm.DB) *domain.OutboundService {
	t.Helper()
	svc, err := NewOutboundServiceStore(db).Activate(context.Background(), &domain.OutboundService{
		Name:     "test",
		Provider: domain.ProviderConsole,
	})
	require.NoError(t, err)
	return svc
}

type sentMessage struct {
	To         string
	Body       string
	ContentSID string
	Vars       map[string]string
}

// fakeDispatcher records sends and answers with a fixed result
type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []sentMessage
	result *SendResult
	err    error
	// empty answers with neither a result nor an error
	empty bool
}

func (d *fakeDispatcher) Send(ctx context.Context, svc *domain.OutboundService, to, body string) (*SendResult, error) {
	return d.record(sentMessage{To: to, Body: body})
}

func (d *fakeDispatcher) SendTemplate(ctx context.Context, svc *domain.OutboundService, to, contentSID string, vars map[string]string) (*SendResult, error) {
	return d.record(sentMessage{To: to, ContentSID: contentSID, Vars: vars})
}

func (d *fakeDispatcher) record(m sentMessage) (*SendResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, m)
	if d.err != nil {
		return nil, d.err
	}
	if d.empty {
		return nil, nil
	}
	if d.result != nil {
		r := *d.result
		return &r, nil
	}
	return &SendResult{Accepted: true, SID: "SM" + uuid.NewString(), Status: "queued"}, nil
}

func (d *fakeDispatcher) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage(nil), d.sent...)
}

type publishedEvent struct {
	Key   string
	Value any
}

// fakePublisher collects published events
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Key: key, Value: v})
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.Key)
	}
	return keys
}

func newTestNotifier(db *gorm.DB, d Dispatcher) *Notifier {
	return NewNotifier(db, map[string]Dispatcher{domain.ProviderConsole: d}, time.Second)
}
