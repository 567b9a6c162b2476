package database

import (
	"testing"

	"cater/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	for _, model := range []any{
		&domain.User{}, &domain.Customer{}, &domain.Booking{}, &domain.Feedback{},
		&domain.MessageLog{}, &domain.OutboundService{}, &domain.FollowUp{},
	} {
		assert.True(t, conn.Migrator().HasTable(model), "%T", model)
	}

	// Migrate is idempotent.
	require.NoError(t, Migrate(conn))
}

func TestSingleActiveServiceIndex(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	require.NoError(t, conn.Create(&domain.OutboundService{Name: "a", Provider: domain.ProviderConsole, Active: true}).Error)
	require.NoError(t, conn.Create(&domain.OutboundService{Name: "b", Provider: domain.ProviderConsole}).Error)
	assert.Error(t, conn.Create(&domain.OutboundService{Name: "c", Provider: domain.ProviderConsole, Active: true}).Error)
}

func TestOneFeedbackPerBooking(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	c := &domain.Customer{Name: "Ama", Phone: "+233241234567"}
	require.NoError(t, conn.Create(c).Error)
	b := &domain.Booking{CustomerID: c.ID, EventName: "Wedding", GuestCount: 10, State: domain.BookingCompleted}
	require.NoError(t, conn.Create(b).Error)

	require.NoError(t, conn.Create(&domain.Feedback{BookingID: b.ID, CustomerID: c.ID, Rating: 5, Source: domain.SourcePhone}).Error)
	assert.Error(t, conn.Create(&domain.Feedback{BookingID: b.ID, CustomerID: c.ID, Rating: 1, Source: domain.SourcePhone}).Error)
}
