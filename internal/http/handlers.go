package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-matching/internal/booking"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/notify"
	"github.com/example/carpool-matching/internal/storage"
	"github.com/example/carpool-matching/internal/suggest"
)

const defaultHistoryLimit = 50

type Server struct {
	Matcher  *matcher.Service
	Bookings *booking.Service
	Store    storage.TripStore
	History  storage.HistoryStore
	Hub      *notify.Hub
	WSReg    *notify.WSRegistry

	minRating float64
	logger    *slog.Logger
	mux       *mux.Router
}

// Deps groups the services the HTTP layer routes to.
type Deps struct {
	Matcher  *matcher.Service
	Bookings *booking.Service
	Store    storage.TripStore
	History  storage.HistoryStore
	Hub      *notify.Hub
	WSReg    *notify.WSRegistry

	// MinDriverRating is the rating bar for match requests that omit one.
	// Zero keeps models.DefaultMinDriverRating.
	MinDriverRating float64
}

func NewServer(d Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Matcher:  d.Matcher,
		Bookings: d.Bookings,
		Store:    d.Store,
		History:  d.History,
		Hub:      d.Hub,
		WSReg:    d.WSReg,

		minRating: d.MinDriverRating,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/trips", s.handlePublishTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/match", s.handleMatch).Methods(http.MethodPost)
	api.HandleFunc("/trips/{trip_id}", s.handleGetTrip).Methods(http.MethodGet)

	api.HandleFunc("/bookings", s.handleBook).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{booking_id}/confirm", s.handleConfirmBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{booking_id}/cancel", s.handleCancelBooking).Methods(http.MethodPost)

	api.HandleFunc("/users/{user_id}/suggestions", s.handleSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/users/{user_id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/users/{user_id}/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/users/{user_id}/notifications", s.handleClearNotifications).Methods(http.MethodDelete)
	api.HandleFunc("/users/{user_id}/notifications/read-all", s.handleReadAllNotifications).Methods(http.MethodPost)
	api.HandleFunc("/users/{user_id}/notifications/{id}/read", s.handleReadNotification).Methods(http.MethodPost)
	api.HandleFunc("/users/{user_id}/notifications/{id}", s.handleDeleteNotification).Methods(http.MethodDelete)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handlePublishTrip(w http.ResponseWriter, r *http.Request) {
	var t models.CandidateTrip
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	saved, err := s.Matcher.Publish(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTrip(r.Context(), mux.Vars(r)["trip_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type matchRequest struct {
	models.MatchQuery
	DepartureAfter  time.Time `json:"departureAfter"`
	DepartureBefore time.Time `json:"departureBefore"`
	Seats           int       `json:"seats"`
	Limit           int       `json:"limit"`
}

type matchResponse struct {
	Matches []models.TripMatch `json:"matches"`
	Count   int                `json:"count"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	// fields missing from the body keep the rider defaults
	req := matchRequest{MatchQuery: models.NewMatchQuery(models.Route{}, models.DefaultPreferences(), 0)}
	if s.minRating > 0 {
		req.MinDriverRating = s.minRating
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MaxPricePerSeat < 0 || req.MinDriverRating < 0 || req.MinDriverRating > 5 {
		http.Error(w, "maxPrice must be >= 0 and minRating within [0,5]", http.StatusBadRequest)
		return
	}
	matches, err := s.Matcher.Search(r.Context(), req.MatchQuery, matcher.SearchOptions{
		DepartureAfter:  req.DepartureAfter,
		DepartureBefore: req.DepartureBefore,
		Seats:           req.Seats,
		Limit:           req.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{Matches: matches, Count: len(matches)})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Bookings.Book(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Confirm(r.Context(), mux.Vars(r)["booking_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Cancel(r.Context(), mux.Vars(r)["booking_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	history, err := s.History.History(r.Context(), mux.Vars(r)["user_id"], 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggest.Generate(history)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	history, err := s.History.History(r.Context(), mux.Vars(r)["user_id"], limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []models.TripHistoryRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	list := s.Hub.List(userID)
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"unread":        s.Hub.UnreadCount(userID),
	})
}

func (s *Server) handleReadNotification(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Hub.MarkAsRead(vars["user_id"], vars["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadAllNotifications(w http.ResponseWriter, r *http.Request) {
	s.Hub.MarkAllAsRead(mux.Vars(r)["user_id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Hub.Delete(vars["user_id"], vars["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	s.Hub.ClearAll(mux.Vars(r)["user_id"])
	w.WriteHeader(http.StatusNoContent)
}

const wsBufferSize = 16

var upgrader = websocket.Upgrader{}

// handleWS streams the user's new notifications until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	notes, unsubscribe := s.Hub.Subscribe(id, wsBufferSize)
	sess := s.WSReg.Add(id, conn)
	defer func() {
		unsubscribe()
		s.WSReg.Remove(id, conn)
		_ = conn.Close()
	}()

	go func() {
		if err := sess.Forward(notes); err != nil {
			s.logger.Warn("ws write failed", "user_id", id, "error", err)
			_ = conn.Close()
		}
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, matcher.ErrInvalidTrip), errors.Is(err, booking.ErrInvalidSeats):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrInsufficientSeats), errors.Is(err, storage.ErrTripExists),
		errors.Is(err, booking.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
