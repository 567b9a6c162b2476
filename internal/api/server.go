// Package api exposes the Twilio webhooks and the staff admin API over the
// goa HTTP runtime.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"cater/internal/config"
	"cater/internal/services"
	apperrors "cater/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/security"
)

// Services groups the service layer used by the handlers
type Services struct {
	Auth      *services.AuthService
	Health    *services.HealthService
	Customers *services.CustomerService
	Bookings  *services.BookingService
	Feedback  *services.FeedbackService
	Router    *services.InboundRouter
	Logs      *services.MessageLogService
	Outbound  *services.OutboundServiceStore
}

// Server holds the HTTP handlers
type Server struct {
	cfg      *config.Config
	svc      Services
	mux      goahttp.Muxer
	validate *validator.Validate
	forms    *schema.Decoder
}

// jwtScheme mirrors the security scheme of the admin API
var jwtScheme = security.JWTScheme{
	Name:   "jwt",
	Scopes: []string{"staff", "admin"},
}

// New creates the server and mounts every route
func New(cfg *config.Config, svc Services) *Server {
	forms := schema.NewDecoder()
	forms.IgnoreUnknownKeys(true)

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		cfg:      cfg,
		svc:      svc,
		mux:      goahttp.NewMuxer(),
		validate: validate,
		forms:    forms,
	}
	s.mount()
	return s
}

func (s *Server) mount() {
	log.Println("[API] Mounting HTTP handlers...")

	s.mux.Handle("GET", "/health", s.health)

	s.mux.Handle("POST", "/whatsapp/webhook", s.webhook)
	for _, path := range []string{"/whatsapp/status", "/whatsapp/status_callback"} {
		s.mux.Handle("POST", path, s.statusCallback)
		s.mux.Handle("GET", path, s.statusCallback)
	}

	s.mux.Handle("POST", "/api/v1/auth/login", s.login)

	staff := []string{"staff"}
	s.mux.Handle("POST", "/api/v1/customers", s.secured(staff, s.createCustomer))
	s.mux.Handle("POST", "/api/v1/customers/{id}/opt-in", s.secured(staff, s.setOptIn))
	s.mux.Handle("POST", "/api/v1/bookings", s.secured(staff, s.createBooking))
	s.mux.Handle("GET", "/api/v1/bookings/{id}", s.secured(staff, s.getBooking))
	s.mux.Handle("POST", "/api/v1/bookings/{id}/confirm", s.secured(staff, s.bookingAction(s.svc.Bookings.Confirm)))
	s.mux.Handle("POST", "/api/v1/bookings/{id}/start", s.secured(staff, s.bookingAction(s.svc.Bookings.Start)))
	s.mux.Handle("POST", "/api/v1/bookings/{id}/complete", s.secured(staff, s.bookingAction(s.svc.Bookings.Complete)))
	s.mux.Handle("POST", "/api/v1/bookings/{id}/cancel", s.secured(staff, s.bookingAction(s.svc.Bookings.Cancel)))
	s.mux.Handle("POST", "/api/v1/bookings/{id}/feedback", s.secured(staff, s.recordFeedback))
	s.mux.Handle("GET", "/api/v1/feedback", s.secured(staff, s.listFeedback))
}

// Handler returns the routed handler wrapped with request ID middleware
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = middleware.PopulateRequestContext()(h)
	h = middleware.RequestID()(h)
	return h
}

// secured rejects requests without a valid bearer token carrying one of scopes
func (s *Server) secured(scopes []string, next http.HandlerFunc) http.HandlerFunc {
	scheme := jwtScheme
	scheme.RequiredScopes = scopes

	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.error(w, r, services.NewUnauthorizedError("authorization header required"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.error(w, r, services.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		user, err := s.svc.Auth.Authenticate(r.Context(), strings.TrimSpace(parts[1]), &scheme)
		if err != nil {
			s.error(w, r, err)
			return
		}
		next(w, r.WithContext(services.WithUser(r.Context(), user)))
	}
}

// errorBody is the JSON shape of every admin API error
type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Errors  map[string]string   `json:"errors,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	enc := goahttp.ResponseEncoder(r.Context(), w)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := enc.Encode(v); err != nil {
		log.Printf("[API] Failed to encode response for %s %s: %v", r.Method, r.URL.Path, err)
	}
}

func (s *Server) error(w http.ResponseWriter, r *http.Request, err error) {
	var fe *fieldErrors
	if errors.As(err, &fe) {
		s.respond(w, r, http.StatusUnprocessableEntity, errorBody{Code: fe.Code, Message: fe.Message, Errors: fe.fields})
		return
	}

	status := services.HTTPStatus(err)
	body := errorBody{Code: apperrors.CodeOf(err), Message: err.Error()}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %v", r.Method, r.URL.Path, err)
		body.Message = "internal server error"
	}
	s.respond(w, r, status, body)
}

// decode reads a JSON body into v and validates its struct tags
func (s *Server) decode(r *http.Request, v any) error {
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		return services.NewBadRequestError("invalid request body")
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// fieldErrors is a validation failure with per-field messages
type fieldErrors struct {
	*apperrors.AppError
	fields map[string]string
}

func (e *fieldErrors) Unwrap() error { return e.AppError }

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.ErrCodeValidation, "validation failed", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = "failed on '" + fe.Tag() + "'"
	}
	return &fieldErrors{
		AppError: apperrors.New(apperrors.ErrCodeValidation, "validation failed"),
		fields:   fields,
	}
}

func (s *Server) pathID(r *http.Request) (uint, error) {
	raw := s.mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, services.NewBadRequestError("invalid id " + strconv.Quote(raw))
	}
	return uint(id), nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.svc.Health.Check(r.Context()))
}

// background detaches work from the request so a client disconnect does not
// abort a send midway.
func background(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
