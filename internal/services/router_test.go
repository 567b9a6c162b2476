package services

import (
	"context"
	"testing"
	"time"

	"cater/internal/domain"
	"cater/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type routerFixture struct {
	db         *gorm.DB
	router     *InboundRouter
	dispatcher *fakeDispatcher
	publisher  *fakePublisher
}

func newRouterFixture(t *testing.T, templateSID string) *routerFixture {
	t.Helper()
	db := newTestDB(t)
	activateConsole(t, db)
	d := &fakeDispatcher{}
	pub := &fakePublisher{}
	recorder := NewFeedbackRecorder(db, nil, "", pub, 0)
	router := NewInboundRouter(
		NewCustomerResolver(db),
		NewBookingMatcher(db, DefaultLookbackWindow),
		MustRatingExtractor(DefaultRatingRules()),
		recorder,
		newTestNotifier(db, d),
		NewMessageLogService(db, pub),
		templateSID,
	)
	return &routerFixture{db: db, router: router, dispatcher: d, publisher: pub}
}

func TestEventKind(t *testing.T) {
	cases := []struct {
		ev   InboundEvent
		want EventKind
	}{
		{InboundEvent{Body: "5 great", From: "whatsapp:+1"}, EventInboundMessage},
		{InboundEvent{Body: "5 great", MessageStatus: "received"}, EventInboundMessage},
		{InboundEvent{Body: "5 great", MessageStatus: "Received"}, EventInboundMessage},
		{InboundEvent{Body: "hello", MessageStatus: "delivered", MessageSID: "SM1"}, EventStatusUpdate},
		{InboundEvent{MessageStatus: "read", MessageSID: "SM1"}, EventStatusUpdate},
		{InboundEvent{Body: "   "}, EventIgnored},
		{InboundEvent{}, EventIgnored},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.ev.Kind(), "%+v", tc.ev)
	}
}

func TestRouterRecordsWhatsAppFeedback(t *testing.T) {
	f := newRouterFixture(t, "")
	c := seedCustomer(t, f.db, "Ama", "+233241234567", true)
	b := seedBooking(t, f.db, c, domain.BookingCompleted, time.Now().Add(-3*time.Hour))

	out := f.router.Handle(context.Background(), InboundEvent{
		From:       "whatsapp:+233241234567",
		Body:       "5 - excellent service!",
		MessageSID: "SMin1",
		Raw:        "Body=5+-+excellent+service%21",
	})
	require.NoError(t, out.Err)
	assert.Equal(t, ResultFeedbackRecorded, out.Result)
	assert.Equal(t, 5, out.Rating)
	assert.True(t, out.Confirmed)
	assert.False(t, out.Escalated)

	var fb domain.Feedback
	require.NoError(t, f.db.Where("booking_id = ?", b.ID).First(&fb).Error)
	assert.Equal(t, 5, fb.Rating)
	assert.Equal(t, "excellent service!", fb.Comments)
	assert.Equal(t, domain.SourceWhatsApp, fb.Source)

	var stored domain.Booking
	require.NoError(t, f.db.First(&stored, b.ID).Error)
	assert.True(t, stored.FeedbackReceived)
	assert.True(t, stored.FeedbackConfirmed)

	sent := f.dispatcher.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "5-star")

	var inbound domain.MessageLog
	require.NoError(t, f.db.Where("direction = ?", domain.DirectionInbound).First(&inbound).Error)
	assert.Equal(t, domain.StatusReceived, inbound.Status)
	require.NotNil(t, inbound.CustomerID)
	assert.Equal(t, c.ID, *inbound.CustomerID)
}

func TestRouterRedeliveryIsIdempotent(t *testing.T) {
	f := newRouterFixture(t, "")
	c := seedCustomer(t, f.db, "Ama", "+233241234567", true)
	seedBooking(t, f.db, c, domain.BookingCompleted, time.Now().Add(-3*time.Hour))
	ev := InboundEvent{From: "whatsapp:+233241234567", Body: "loved it, food was amazing", MessageSID: "SMdup"}

	first := f.router.Handle(context.Background(), ev)
	require.Equal(t, ResultFeedbackRecorded, first.Result)
	assert.Equal(t, 5, first.Rating)

	second := f.router.Handle(context.Background(), ev)
	assert.Equal(t, ResultNoBooking, second.Result, "the only booking already has feedback")

	var count int64
	require.NoError(t, f.db.Model(&domain.Feedback{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, f.db.Model(&domain.MessageLog{}).Where("direction = ?", domain.DirectionInbound).Count(&count).Error)
	assert.Equal(t, int64(1), count, "redelivered inbound messages share a log row")
}

func TestRouterRedeliveryWithSecondEligibleBooking(t *testing.T) {
	f := newRouterFixture(t, "")
	c := seedCustomer(t, f.db, "Ama", "+233241234567", true)
	older := seedBooking(t, f.db, c, domain.BookingCompleted, time.Now().Add(-48*time.Hour))
	newer := seedBooking(t, f.db, c, domain.BookingCompleted, time.Now().Add(-3*time.Hour))
	ev := InboundEvent{From: "whatsapp:+233241234567", Body: "4 stars, lovely", MessageSID: "SMtwice"}

	first := f.router.Handle(context.Background(), ev)
	require.Equal(t, ResultFeedbackRecorded, first.Result)

	second := f.router.Handle(context.Background(), ev)
	assert.Equal(t, ResultDuplicate, second.Result)
	assert.Zero(t, second.FeedbackID)

	var feedbacks []domain.Feedback
	require.NoError(t, f.db.Find(&feedbacks).Error)
	require.Len(t, feedbacks, 1)
	assert.Equal(t, newer.ID, feedbacks[0].BookingID)
	require.NotNil(t, feedbacks[0].MessageSID)
	assert.Equal(t, "SMtwice", *feedbacks[0].MessageSID)

	var stored domain.Booking
	require.NoError(t, f.db.First(&stored, older.ID).Error)
	assert.False(t, stored.FeedbackReceived, "a redelivery must not rate the next booking")
	assert.Len(t, f.dispatcher.messages(), 1, "one thank-you per message")

	// A new message from the same customer still rates the older booking.
	third := f.router.Handle(context.Background(), InboundEvent{
		From: "whatsapp:+233241234567", Body: "3", MessageSID: "SMnext",
	})
	assert.Equal(t, ResultFeedbackRecorded, third.Result)
	require.NoError(t, f.db.First(&stored, older.ID).Error)
	assert.True(t, stored.FeedbackReceived)
}

func TestRouterEscalatesAndUsesTemplate(t *testing.T) {
	f := newRouterFixture(t, "HXthanks")
	c := seedCustomer(t, f.db, "Ama", "+233241234567", true)
	b := seedBooking(t, f.db, c, domain.BookingCompleted, time.Now().Add(-3*time.Hour))

	out := f.router.Handle(context.Background(), InboundEvent{From: "+233241234567", Body: "2/5 the food was cold"})
	require.Equal(t, ResultFeedbackRecorded, out.Result)
	assert.Equal(t, 2, out.Rating)
	assert.True(t, out.Escalated)

	sent := f.dispatcher.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "HXthanks", sent[0].ContentSID)
	assert.Equal(t, map[string]string{"1": "2", "2": b.EventName}, sent[0].Vars)

	var fu domain.FollowUp
	require.NoError(t, f.db.Where("booking_id = ?", b.ID).First(&fu).Error)
	assert.Equal(t, 2, fu.Rating)
	assert.Equal(t, []string{events.FeedbackRecorded, events.FeedbackEscalated}, f.publisher.keys())
}

func TestRouterOptedOutCustomerStillRecorded(t *testing.T) {
	f := newRouterFixture(t, "")
	c := seedCustomer(t, f.db, "Yaw", "+233241111111", false)
	b := seedBooking(t, f.db, c, domain.BookingCompleted, time.Now().Add(-time.Hour))

	out := f.router.Handle(context.Background(), InboundEvent{From: "whatsapp:+233241111111", Body: "4 stars"})
	assert.Equal(t, ResultFeedbackRecorded, out.Result)
	assert.False(t, out.Confirmed)
	assert.Empty(t, f.dispatcher.messages())

	var stored domain.Booking
	require.NoError(t, f.db.First(&stored, b.ID).Error)
	assert.True(t, stored.FeedbackReceived)
	assert.False(t, stored.FeedbackConfirmed)
}

func TestRouterBenignOutcomes(t *testing.T) {
	f := newRouterFixture(t, "")
	ctx := context.Background()

	out := f.router.Handle(ctx, InboundEvent{From: "whatsapp:+233200000000", Body: "5"})
	assert.Equal(t, ResultNoCustomer, out.Result)

	c := seedCustomer(t, f.db, "Ama", "+233241234567", true)
	seedBooking(t, f.db, c, domain.BookingConfirmed, time.Now().Add(-time.Hour))
	out = f.router.Handle(ctx, InboundEvent{From: "whatsapp:+233241234567", Body: "5"})
	assert.Equal(t, ResultNoBooking, out.Result)

	out = f.router.Handle(ctx, InboundEvent{Body: "5"})
	assert.Equal(t, ResultMalformed, out.Result)

	out = f.router.Handle(ctx, InboundEvent{})
	assert.Equal(t, ResultIgnored, out.Result)

	var count int64
	require.NoError(t, f.db.Model(&domain.Feedback{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRouterAppliesStatusUpdates(t *testing.T) {
	f := newRouterFixture(t, "")

	out := f.router.Handle(context.Background(), InboundEvent{
		MessageSID:    "SMcb",
		MessageStatus: "delivered",
		Raw:           "MessageSid=SMcb&MessageStatus=delivered",
	})
	assert.Equal(t, EventStatusUpdate, out.Kind)
	assert.Equal(t, ResultStatusApplied, out.Result)

	var entry domain.MessageLog
	require.NoError(t, f.db.Where("message_sid = ?", "SMcb").First(&entry).Error)
	assert.Equal(t, domain.StatusDelivered, entry.Status)

	out = f.router.Handle(context.Background(), InboundEvent{MessageStatus: "sent"})
	assert.Equal(t, ResultMalformed, out.Result)
}
