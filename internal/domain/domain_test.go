package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingStateTransitions(t *testing.T) {
	cases := []struct {
		from BookingState
		to   BookingState
		ok   bool
	}{
		{BookingDraft, BookingConfirmed, true},
		{BookingConfirmed, BookingInProgress, true},
		{BookingInProgress, BookingCompleted, true},
		{BookingDraft, BookingCompleted, false},
		{BookingDraft, BookingInProgress, false},
		{BookingConfirmed, BookingDraft, false},
		{BookingDraft, BookingCancelled, true},
		{BookingInProgress, BookingCancelled, true},
		{BookingCompleted, BookingCancelled, false},
		{BookingCancelled, BookingDraft, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNewBookingReference(t *testing.T) {
	a, b := NewBookingReference(), NewBookingReference()
	assert.True(t, strings.HasPrefix(a, "BK-"))
	assert.Len(t, a, 11)
	assert.NotEqual(t, a, b)
}

func TestFeedbackSourceAndPositivity(t *testing.T) {
	assert.True(t, SourceInPerson.Valid())
	assert.False(t, FeedbackSource("sms").Valid())

	assert.True(t, (&Feedback{Rating: 4}).IsPositive())
	assert.False(t, (&Feedback{Rating: 3}).IsPositive())
}

func TestParseCallbackStatus(t *testing.T) {
	s, ok := ParseCallbackStatus("Delivered")
	assert.True(t, ok)
	assert.Equal(t, StatusDelivered, s)

	s, ok = ParseCallbackStatus("undelivered")
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, s)

	_, ok = ParseCallbackStatus("bounced")
	assert.False(t, ok)

	assert.Equal(t, StatusQueued, InitialSendStatus("queued"))
	assert.Equal(t, StatusSent, InitialSendStatus("accepted"))
}

func TestMessageLogAppendResponse(t *testing.T) {
	m := &MessageLog{}
	m.AppendResponse(`{"status":"queued"}`)
	m.AppendResponse("")
	m.AppendResponse(`{"status":"delivered"}`)
	assert.Equal(t, "{\"status\":\"queued\"}\n{\"status\":\"delivered\"}", m.ResponseData)
}

func TestStatusCallbackURL(t *testing.T) {
	cases := map[string]string{
		"":                           "",
		"http://localhost:8000":      "",
		"http://127.0.0.1:8000/":     "",
		"ftp://cater.example.com":    "",
		"https://cater.example.com/": "https://cater.example.com/whatsapp/status",
	}
	for base, want := range cases {
		svc := &OutboundService{StatusCallbackBase: base}
		assert.Equal(t, want, svc.StatusCallbackURL(), base)
	}
}
