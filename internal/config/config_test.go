package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:///./test.db")
	t.Setenv("WHATSAPP_PROVIDER", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.App.Port)
	assert.Equal(t, 7, cfg.Feedback.LookbackDays)
	assert.Equal(t, 15*time.Second, cfg.Feedback.SendTimeout)
	assert.Equal(t, 4, cfg.Feedback.EscalateBelow)
	assert.Equal(t, 7*24*time.Hour, cfg.Feedback.LookbackWindow())
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)
	assert.Contains(t, cfg.CORS.AllowedMethods, "POST")
	assert.Equal(t, "./test.db", cfg.Database.GetSQLitePath())
	assert.False(t, cfg.Database.IsPostgres())
}

func TestLoadRejectsIncompleteTwilio(t *testing.T) {
	t.Setenv("WHATSAPP_PROVIDER", "twilio")
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWILIO_ACCOUNT_SID")
}

func TestGetPostgresDSN(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{
			url:  "postgresql://cater:s3cr:et@db.internal:6543/cater?sslmode=require",
			want: "host=db.internal port=6543 user=cater dbname=cater sslmode=require password=s3cr:et",
		},
		{
			url:  "postgres://cater@localhost/feedback",
			want: "host=localhost port=5432 user=cater dbname=feedback sslmode=disable",
		},
		{
			url:  "host=localhost user=cater dbname=cater",
			want: "host=localhost user=cater dbname=cater",
		},
	}

	for _, tc := range cases {
		cfg := DatabaseConfig{URL: tc.url}
		assert.True(t, cfg.IsPostgres() || tc.url[:4] == "host", tc.url)
		assert.Equal(t, tc.want, cfg.GetPostgresDSN(), tc.url)
	}
}
