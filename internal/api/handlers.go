package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"cater/internal/domain"
	"cater/internal/services"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var p services.LoginPayload
	if err := s.decode(r, &p); err != nil {
		s.error(w, r, err)
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), p)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, res)
}

func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in services.CreateCustomerInput
	if err := s.decode(r, &in); err != nil {
		s.error(w, r, err)
		return
	}
	customer, err := s.svc.Customers.Create(r.Context(), in)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, customer)
}

type optInPayload struct {
	OptIn *bool `json:"opt_in" validate:"required"`
}

func (s *Server) setOptIn(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.error(w, r, err)
		return
	}
	var p optInPayload
	if err := s.decode(r, &p); err != nil {
		s.error(w, r, err)
		return
	}
	if err := s.svc.Customers.SetOptIn(r.Context(), id, *p.OptIn); err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"id": id, "whatsapp_opt_in": *p.OptIn})
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var in services.CreateBookingInput
	if err := s.decode(r, &in); err != nil {
		s.error(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.Create(r.Context(), in)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, booking)
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.error(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.Get(r.Context(), id)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, booking)
}

// bookingAction adapts a lifecycle transition to a handler. The transition
// runs detached from the request because it may send a customer message.
func (s *Server) bookingAction(action func(context.Context, uint) (*domain.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.pathID(r)
		if err != nil {
			s.error(w, r, err)
			return
		}
		booking, err := action(background(r), id)
		if err != nil {
			s.error(w, r, err)
			return
		}
		if user, ok := services.UserFromContext(r.Context()); ok {
			log.Printf("[API] Booking %s is now %s (by %s)", booking.Reference, booking.State, user.Username)
		}
		s.respond(w, r, http.StatusOK, booking)
	}
}

func (s *Server) recordFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.error(w, r, err)
		return
	}
	var in services.ManualFeedbackInput
	if err := s.decode(r, &in); err != nil {
		s.error(w, r, err)
		return
	}
	feedback, err := s.svc.Feedback.RecordManual(background(r), id, in)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, feedback)
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	feedbacks, err := s.svc.Feedback.List(r.Context(), skip, limit)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, feedbacks)
}
