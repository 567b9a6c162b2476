package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"cater/internal/config"
	"cater/internal/database"
	"cater/internal/domain"
	"cater/internal/services"
	"cater/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	cfg     *config.Config
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		App:      config.AppConfig{Name: "cater", BaseURL: "https://cater.example.com"},
		Auth:     config.AuthConfig{SecretKey: "test-secret", TokenExpiryMinutes: 5, Algorithm: "HS256"},
		WhatsApp: config.WhatsAppConfig{ValidateSignature: true},
	}

	notifier := services.NewNotifier(db, map[string]services.Dispatcher{
		domain.ProviderConsole: &services.ConsoleDispatcher{},
	}, time.Second)
	recorder := services.NewFeedbackRecorder(db, nil, "", nil, 0)
	logs := services.NewMessageLogService(db, nil)

	srv := New(cfg, Services{
		Auth:      services.NewAuthService(db, &cfg.Auth),
		Health:    services.NewHealthService(cfg.App.Name, func() error { return nil }),
		Customers: services.NewCustomerService(db),
		Bookings:  services.NewBookingService(db, notifier),
		Feedback:  services.NewFeedbackService(db, recorder),
		Router: services.NewInboundRouter(
			services.NewCustomerResolver(db),
			services.NewBookingMatcher(db, services.DefaultLookbackWindow),
			services.MustRatingExtractor(services.DefaultRatingRules()),
			recorder, notifier, logs, "",
		),
		Logs:     logs,
		Outbound: services.NewOutboundServiceStore(db),
	})
	return &fixture{db: db, cfg: cfg, handler: srv.Handler()}
}

func (f *fixture) activate(t *testing.T, provider, token string) {
	t.Helper()
	_, err := services.NewOutboundServiceStore(f.db).Activate(context.Background(), &domain.OutboundService{
		Name:       provider,
		Provider:   provider,
		AccountSID: "AC123",
		AuthToken:  token,
	})
	require.NoError(t, err)
}

func (f *fixture) postForm(path string, form url.Values, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	var payload io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		payload = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T, username string, staff bool) string {
	t.Helper()
	hash, err := util.HashPassword("s3cret!")
	require.NoError(t, err)
	u := &domain.User{Username: username, Email: username + "@cater.test", HashedPassword: hash, IsActive: true, IsStaff: staff}
	require.NoError(t, f.db.Create(u).Error)
	tok, _, err := util.GenerateToken(&f.cfg.Auth, u)
	require.NoError(t, err)
	return tok
}

// twilioSignature signs a form the way Twilio signs webhook requests
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k + form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.doJSON(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestWebhookAcknowledgesEveryDelivery(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader("%zz=%%"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = f.postForm("/whatsapp/webhook", url.Values{}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.postForm("/whatsapp/webhook", url.Values{
		"From":       {"whatsapp:+233200000000"},
		"Body":       {"5 great"},
		"MessageSid": {"SMstranger"},
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	var entry domain.MessageLog
	require.NoError(t, f.db.Where("message_sid = ?", "SMstranger").First(&entry).Error)
	assert.Equal(t, domain.DirectionInbound, entry.Direction)
	assert.Nil(t, entry.CustomerID)
}

func TestWebhookRecordsFeedback(t *testing.T) {
	f := newFixture(t)
	f.activate(t, domain.ProviderConsole, "")
	c := &domain.Customer{Name: "Ama", Phone: "+233241234567", WhatsAppOptIn: true}
	require.NoError(t, f.db.Create(c).Error)
	b := &domain.Booking{CustomerID: c.ID, EventName: "Ama's Wedding", GuestCount: 80,
		State: domain.BookingCompleted, EventDate: time.Now().UTC().Add(-4 * time.Hour)}
	require.NoError(t, f.db.Create(b).Error)

	form := url.Values{
		"From":       {"whatsapp:+233241234567"},
		"Body":       {"5 - excellent service!"},
		"MessageSid": {"SMfb1"},
		"SmsStatus":  {"received"},
	}
	rec := f.postForm("/whatsapp/webhook", form, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fb domain.Feedback
	require.NoError(t, f.db.Where("booking_id = ?", b.ID).First(&fb).Error)
	assert.Equal(t, 5, fb.Rating)

	rec = f.postForm("/whatsapp/webhook", form, "")
	assert.Equal(t, http.StatusOK, rec.Code, "redeliveries are acknowledged too")

	var count int64
	require.NoError(t, f.db.Model(&domain.Feedback{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhookSignature(t *testing.T) {
	f := newFixture(t)
	f.activate(t, domain.ProviderTwilio, "twilio-token")
	form := url.Values{"MessageSid": {"SMsig"}, "MessageStatus": {"delivered"}}

	rec := f.postForm("/whatsapp/webhook", form, "bm90IGEgc2lnbmF0dXJl")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sig := twilioSignature("twilio-token", "https://cater.example.com/whatsapp/webhook", form)
	rec = f.postForm("/whatsapp/webhook", form, sig)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.postForm("/whatsapp/status", form, "bm90IGEgc2lnbmF0dXJl")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.cfg.WhatsApp.ValidateSignature = false
	rec = f.postForm("/whatsapp/webhook", form, "bm90IGEgc2lnbmF0dXJl")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusCallback(t *testing.T) {
	f := newFixture(t)

	rec := f.postForm("/whatsapp/status", url.Values{"MessageStatus": {"sent"}}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", rec.Body.String())

	rec = f.postForm("/whatsapp/status_callback", url.Values{
		"MessageSid":    {"SMcb"},
		"MessageStatus": {"Undelivered"},
		"ErrorCode":     {"30008"},
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	var entry domain.MessageLog
	require.NoError(t, f.db.Where("message_sid = ?", "SMcb").First(&entry).Error)
	assert.Equal(t, domain.StatusFailed, entry.Status)

	req := httptest.NewRequest(http.MethodGet, "/whatsapp/status?MessageSid=SMcb&MessageStatus=delivered", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLoginAndSecuredRoutes(t *testing.T) {
	f := newFixture(t)
	f.token(t, "kitchen", true)

	rec := f.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "kitchen", "password": "s3cret!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decodeBody(t, rec)["access_token"].(string)
	require.NotEmpty(t, token)

	rec = f.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "kitchen", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "kitchen"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	customer := map[string]any{"name": "Kofi", "phone": "+233209876543"}
	rec = f.doJSON(http.MethodPost, "/api/v1/customers", "", customer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeBody(t, rec)["code"])

	guest := f.token(t, "guest", false)
	rec = f.doJSON(http.MethodPost, "/api/v1/customers", guest, customer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doJSON(http.MethodPost, "/api/v1/customers", token, customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestBookingFlowOverAPI(t *testing.T) {
	f := newFixture(t)
	f.activate(t, domain.ProviderConsole, "")
	token := f.token(t, "kitchen", true)

	rec := f.doJSON(http.MethodPost, "/api/v1/customers", token, map[string]any{"name": "K", "phone": "12"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	errs, _ := body["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "phone")

	rec = f.doJSON(http.MethodPost, "/api/v1/customers", token, map[string]any{"name": "Kofi", "phone": "+233209876543"})
	require.Equal(t, http.StatusCreated, rec.Code)
	customerID := uint(decodeBody(t, rec)["id"].(float64))

	rec = f.doJSON(http.MethodPost, "/api/v1/bookings", token, map[string]any{
		"customer_id": customerID,
		"event_name":  "Kofi's Graduation",
		"event_type":  "graduation",
		"guest_count": 40,
		"event_date":  time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bookingID := uint(decodeBody(t, rec)["id"].(float64))
	base := fmt.Sprintf("/api/v1/bookings/%d", bookingID)

	rec = f.doJSON(http.MethodPost, base+"/start", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_BOOKING_STATE", decodeBody(t, rec)["code"])

	for _, action := range []string{"confirm", "start", "complete"} {
		rec = f.doJSON(http.MethodPost, base+"/"+action, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, action)
	}

	rec = f.doJSON(http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.BookingCompleted), decodeBody(t, rec)["state"])

	rec = f.doJSON(http.MethodGet, "/api/v1/bookings/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.doJSON(http.MethodGet, "/api/v1/bookings/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The event is still in the future, so feedback is rejected until it happens.
	rec = f.doJSON(http.MethodPost, base+"/feedback", token, map[string]any{"rating": 4, "source": "phone"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.NoError(t, f.db.Model(&domain.Booking{}).Where("id = ?", bookingID).
		Update("event_date", time.Now().UTC().Add(-time.Hour)).Error)

	rec = f.doJSON(http.MethodPost, base+"/feedback", token, map[string]any{"rating": 4, "source": "phone", "comments": "lovely"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.doJSON(http.MethodPost, base+"/feedback", token, map[string]any{"rating": 2, "source": "phone"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.doJSON(http.MethodPost, base+"/feedback", token, map[string]any{"rating": 9, "source": "fax"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.doJSON(http.MethodGet, "/api/v1/feedback?limit=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, float64(4), list[0]["rating"])

	rec = f.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/customers/%d/opt-in", customerID), token, map[string]any{"opt_in": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["whatsapp_opt_in"])
}
