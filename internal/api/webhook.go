package api

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"cater/internal/services"

	"github.com/twilio/twilio-go/client"
)

const signatureHeader = "X-Twilio-Signature"

// WebhookForm is the subset of Twilio's form fields the pipeline reads
type WebhookForm struct {
	From          string `schema:"From"`
	Body          string `schema:"Body"`
	MessageSid    string `schema:"MessageSid"`
	SmsSid        string `schema:"SmsSid"`
	MessageStatus string `schema:"MessageStatus"`
	SmsStatus     string `schema:"SmsStatus"`
	ErrorCode     string `schema:"ErrorCode"`
	ErrorMessage  string `schema:"ErrorMessage"`
}

// SID returns MessageSid, falling back to the legacy SmsSid
func (f WebhookForm) SID() string {
	if f.MessageSid != "" {
		return f.MessageSid
	}
	return f.SmsSid
}

// Status returns the lower-cased delivery status
func (f WebhookForm) Status() string {
	status := f.MessageStatus
	if status == "" {
		status = f.SmsStatus
	}
	return strings.ToLower(strings.TrimSpace(status))
}

// parseForm decodes the request form. raw is the encoded form kept for the
// message log.
func (s *Server) parseForm(r *http.Request) (WebhookForm, string, error) {
	var form WebhookForm
	if err := r.ParseForm(); err != nil {
		return form, "", err
	}
	if err := s.forms.Decode(&form, r.Form); err != nil {
		return form, "", err
	}
	return form, r.Form.Encode(), nil
}

// webhook receives inbound messages and status callbacks. Twilio retries
// non-2xx answers, so every delivery is acknowledged with 200 and an empty
// body; only a request with an invalid signature gets 403.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	form, raw, err := s.parseForm(r)
	if err != nil {
		log.Printf("[WEBHOOK] Unreadable webhook payload: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !s.signatureValid(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	out := s.svc.Router.Handle(background(r), services.InboundEvent{
		From:          form.From,
		Body:          form.Body,
		MessageSID:    form.SID(),
		MessageStatus: form.Status(),
		ErrorCode:     form.ErrorCode,
		ErrorMessage:  form.ErrorMessage,
		Raw:           raw,
	})
	log.Printf("[WEBHOOK] %s -> %s", out.Kind, out.Result)
	w.WriteHeader(http.StatusOK)
}

// statusCallback applies a delivery status and answers "ok", or "error" when
// the callback could not be applied.
func (s *Server) statusCallback(w http.ResponseWriter, r *http.Request) {
	form, raw, err := s.parseForm(r)
	if err != nil {
		log.Printf("[WEBHOOK] Unreadable status callback: %v", err)
		writeText(w, "error")
		return
	}
	if !s.signatureValid(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if form.SID() == "" {
		log.Println("[WEBHOOK] Status callback without MessageSid")
		writeText(w, "error")
		return
	}

	_, err = s.svc.Logs.ApplyStatus(background(r), services.StatusUpdate{
		MessageSID:   form.SID(),
		Status:       form.Status(),
		ErrorCode:    form.ErrorCode,
		ErrorMessage: form.ErrorMessage,
		Raw:          raw,
	})
	if err != nil {
		log.Printf("[WEBHOOK] Failed to apply status callback for %s: %v", form.SID(), err)
		writeText(w, "error")
		return
	}
	writeText(w, "ok")
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// signatureValid checks X-Twilio-Signature against the active service's auth
// token. Requests without the header, or with no active service, pass.
func (s *Server) signatureValid(r *http.Request) bool {
	if !s.cfg.WhatsApp.ValidateSignature {
		return true
	}
	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return true
	}
	svc, err := s.svc.Outbound.Active(r.Context())
	if err != nil || svc.AuthToken == "" {
		return true
	}

	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := client.NewRequestValidator(svc.AuthToken)
	if !validator.Validate(s.requestURL(r), params, signature) {
		log.Printf("[WEBHOOK] Twilio signature validation failed for %s", r.URL.Path)
		return false
	}
	return true
}

// requestURL rebuilds the URL Twilio signed. Behind a proxy BASE_URL gives
// the public origin.
func (s *Server) requestURL(r *http.Request) string {
	if base := strings.TrimRight(s.cfg.App.BaseURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}
