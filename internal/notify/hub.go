package notify

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/observability"
)

var ErrNotFound = errors.New("notification not found")

type Type string

const (
	TripRequest          Type = "trip_request"
	TripAccepted         Type = "trip_accepted"
	TripRejected         Type = "trip_rejected"
	TripCancelled        Type = "trip_cancelled"
	DriverArrived        Type = "driver_arrived"
	TripStarted          Type = "trip_started"
	TripCompleted        Type = "trip_completed"
	PaymentReceived      Type = "payment_received"
	PaymentSent          Type = "payment_sent"
	Message              Type = "message"
	RatingReminder       Type = "rating_reminder"
	VerificationApproved Type = "verification_approved"
	VerificationRejected Type = "verification_rejected"
	SafetyAlert          Type = "safety_alert"
	Suggestion           Type = "suggestion"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Read      bool              `json:"read"`
	ActionURL string            `json:"actionUrl,omitempty"`
	Priority  Priority          `json:"priority"`
	Data      map[string]string `json:"data,omitempty"`
}

// Hub keeps per-user notification lists, newest first, and fans new
// notifications out to channel subscribers. Connected clients receive them
// through a subscription, so Add never waits on the network.
type Hub struct {
	mu     sync.Mutex
	lists  map[string][]Notification
	subs   map[string]map[int]chan Notification
	nextID int

	logger *slog.Logger
	now    func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		lists:  make(map[string][]Notification),
		subs:   make(map[string]map[int]chan Notification),
		logger: logger,
		now:    time.Now,
	}
}

// Add stores n for userID and delivers it to current subscribers. Delivery
// is best effort: a subscriber with a full buffer misses the notification.
func (h *Hub) Add(userID string, n Notification) Notification {
	n.ID = uuid.NewString()
	n.UserID = userID
	n.Timestamp = h.now()
	n.Read = false
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}

	dropped := 0
	h.mu.Lock()
	h.lists[userID] = append([]Notification{n}, h.lists[userID]...)
	for _, ch := range h.subs[userID] {
		select {
		case ch <- n:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	observability.NotificationsTotal.WithLabelValues(string(n.Type)).Inc()
	if dropped > 0 {
		h.logger.Warn("slow subscriber missed notification", "user_id", userID, "notification_id", n.ID, "dropped", dropped)
	}
	return n
}

// Subscribe returns a channel receiving userID's new notifications and a
// func that unsubscribes and closes the channel.
func (h *Hub) Subscribe(userID string, buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Notification)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) List(userID string) []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification{}, h.lists[userID]...)
}

func (h *Hub) UnreadCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, x := range h.lists[userID] {
		if !x.Read {
			n++
		}
	}
	return n
}

func (h *Hub) MarkAsRead(userID, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.lists[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (h *Hub) MarkAllAsRead(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.lists[userID]
	for i := range list {
		list[i].Read = true
	}
}

func (h *Hub) Delete(userID, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.lists[userID]
	for i := range list {
		if list[i].ID == id {
			h.lists[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (h *Hub) ClearAll(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lists, userID)
}
