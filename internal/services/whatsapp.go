package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"cater/internal/domain"
	"cater/internal/util"
	apperrors "cater/pkg/errors"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SendResult describes what the messaging provider did with a message
type SendResult struct {
	Accepted bool
	SID      string
	Status   string
	Raw      string
	Error    string
}

// Dispatcher sends WhatsApp messages through an outbound service. The service
// is passed on every call; implementations hold no provider settings.
// A returned error is a transport failure. A rejection by the provider is a
// SendResult with Accepted false.
type Dispatcher interface {
	Send(ctx context.Context, svc *domain.OutboundService, to, body string) (*SendResult, error)
	SendTemplate(ctx context.Context, svc *domain.OutboundService, to, contentSID string, vars map[string]string) (*SendResult, error)
}

// NewDispatcher returns the dispatcher for a provider name
func NewDispatcher(provider string) (Dispatcher, error) {
	switch strings.ToLower(provider) {
	case domain.ProviderTwilio:
		return NewTwilioDispatcher(), nil
	case domain.ProviderConsole, "dev", "development":
		return &ConsoleDispatcher{}, nil
	default:
		return nil, fmt.Errorf("unsupported WhatsApp provider: %s", provider)
	}
}

// twilioMessage is the subset of the Messages API resource we read
type twilioMessage struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

// twilioError is the error body returned by the REST API
type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info"`
}

// TwilioDispatcher sends messages with the Twilio Messages API
type TwilioDispatcher struct {
	client *resty.Client
}

// NewTwilioDispatcher creates a new Twilio dispatcher
func NewTwilioDispatcher() *TwilioDispatcher {
	client := resty.New().
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "cater-feedback/1.0")
	return &TwilioDispatcher{client: client}
}

// WithClient replaces the HTTP client, used by tests to point at a fake API
func (d *TwilioDispatcher) WithClient(client *resty.Client) *TwilioDispatcher {
	d.client = client
	return d
}

func accountURL(svc *domain.OutboundService) string {
	base := strings.TrimSpace(svc.APIURL)
	if base == "" {
		base = "https://api.twilio.com/2010-04-01/Accounts/"
	}
	return strings.TrimRight(base, "/") + "/" + svc.AccountSID
}

// Send sends a free-form text message
func (d *TwilioDispatcher) Send(ctx context.Context, svc *domain.OutboundService, to, body string) (*SendResult, error) {
	return d.post(ctx, "send", svc, to, map[string]string{"Body": body})
}

// SendTemplate sends an approved content template with variables
func (d *TwilioDispatcher) SendTemplate(ctx context.Context, svc *domain.OutboundService, to, contentSID string, vars map[string]string) (*SendResult, error) {
	form := map[string]string{"ContentSid": contentSID}
	if len(vars) > 0 {
		encoded, err := json.Marshal(vars)
		if err != nil {
			return nil, fmt.Errorf("failed to encode content variables: %w", err)
		}
		form["ContentVariables"] = string(encoded)
	}
	return d.post(ctx, "send_template", svc, to, form)
}

func (d *TwilioDispatcher) post(ctx context.Context, op string, svc *domain.OutboundService, to string, form map[string]string) (*SendResult, error) {
	ctx, span := otel.Tracer("cater/whatsapp").Start(ctx, "twilio."+op)
	defer span.End()

	if svc == nil || svc.AccountSID == "" || svc.AuthToken == "" {
		return nil, apperrors.New(apperrors.ErrCodeTransport, "twilio service is not configured")
	}

	form["To"] = util.WhatsAppAddress(to)
	if svc.MessagingServiceSID != "" {
		form["MessagingServiceSid"] = svc.MessagingServiceSID
	} else {
		form["From"] = util.WhatsAppAddress(svc.FromNumber)
	}
	if cb := svc.StatusCallbackURL(); cb != "" {
		form["StatusCallback"] = cb
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBasicAuth(svc.AccountSID, svc.AuthToken).
		SetFormData(form).
		Post(accountURL(svc) + "/Messages.json")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, apperrors.Wrap(apperrors.ErrCodeTransport, "twilio request failed", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	result := &SendResult{Raw: resp.String()}

	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		var apiErr twilioError
		if jsonErr := json.Unmarshal(resp.Body(), &apiErr); jsonErr == nil && apiErr.Message != "" {
			result.Error = fmt.Sprintf("%d: %s", apiErr.Code, apiErr.Message)
		} else {
			result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode())
		}
		span.SetStatus(codes.Error, "rejected")
		log.Printf("[WHATSAPP] Twilio rejected message to %s: %s", form["To"], result.Error)
		return result, nil
	}

	var msg twilioMessage
	if err := json.Unmarshal(resp.Body(), &msg); err != nil {
		result.Error = "unreadable response from provider"
		return result, nil
	}
	result.Accepted = true
	result.SID = msg.SID
	result.Status = msg.Status
	if msg.ErrorMessage != nil {
		result.Error = *msg.ErrorMessage
	}
	return result, nil
}

// TestConnection fetches the account resource to check the credentials
func (d *TwilioDispatcher) TestConnection(ctx context.Context, svc *domain.OutboundService) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBasicAuth(svc.AccountSID, svc.AuthToken).
		Get(accountURL(svc) + ".json")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeTransport, "twilio request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apperrors.New(apperrors.ErrCodeTransport, fmt.Sprintf("twilio returned HTTP %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// ConsoleDispatcher logs messages instead of sending them (development)
type ConsoleDispatcher struct{}

// Send logs a text message
func (d *ConsoleDispatcher) Send(ctx context.Context, svc *domain.OutboundService, to, body string) (*SendResult, error) {
	log.Printf("[WHATSAPP] Message would be sent to %s: %s", util.WhatsAppAddress(to), body)
	return consoleResult(), nil
}

// SendTemplate logs a template message
func (d *ConsoleDispatcher) SendTemplate(ctx context.Context, svc *domain.OutboundService, to, contentSID string, vars map[string]string) (*SendResult, error) {
	log.Printf("[WHATSAPP] Template %s would be sent to %s with %v", contentSID, util.WhatsAppAddress(to), vars)
	return consoleResult(), nil
}

func consoleResult() *SendResult {
	return &SendResult{
		Accepted: true,
		SID:      "CONSOLE" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:   string(domain.StatusSent),
	}
}
