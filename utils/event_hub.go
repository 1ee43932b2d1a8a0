package utils

import (
	"sync"
)

type RequestEventType string

const (
	EventRequestCreated    RequestEventType = "request.created"
	EventRequestUpdated    RequestEventType = "request.updated"
	EventRequestNegotiated RequestEventType = "request.negotiated"
	EventRequestResolved   RequestEventType = "request.resolved"
	EventRequestDeleted    RequestEventType = "request.deleted"
)

// RequestEvent is pushed to both parties of an ad request after a change
// has been committed.
type RequestEvent struct {
	Type       RequestEventType `json:"type"`
	RequestID  uint             `json:"request_id"`
	CampaignID uint             `json:"campaign_id"`
	Status     string           `json:"status"`
	Amount     float64          `json:"amount"`
}

const subscriberBuffer = 16

// EventHub fans request events out to the connected users.
type EventHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint]map[uint64]chan RequestEvent
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[uint]map[uint64]chan RequestEvent)}
}

// Subscribe registers a listener for userID. The returned cancel func must
// be called once; it closes the channel.
func (h *EventHub) Subscribe(userID uint) (<-chan RequestEvent, func()) {
	ch := make(chan RequestEvent, subscriberBuffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan RequestEvent)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
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
	return ch, cancel
}

// Publish delivers ev to every subscriber of the given users. A full
// subscriber buffer drops the event for that subscriber.
func (h *EventHub) Publish(ev RequestEvent, userIDs ...uint) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	seen := make(map[uint]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		for _, ch := range h.subs[uid] {
			select {
			case ch <- ev:
				delivered++
			default:
			}
		}
	}
	return delivered
}

// Subscribers reports the number of open subscriptions for userID.
func (h *EventHub) Subscribers(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
