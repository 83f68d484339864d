package feed

import (
	"context"
	"log"
)

// Subscriber receives encoded feed frames for one campaign. Frames arrive on
// Events; a subscriber that stops draining is dropped by the hub.
type Subscriber struct {
	CampaignID string
	Events     chan []byte
}

// Relay mirrors published events to an external broker before fan-out.
type Relay interface {
	Publish(ctx context.Context, event Event) error
}

// Hub fans combat events out to campaign subscribers.
type Hub struct {
	subscribers map[string]map[*Subscriber]bool
	register    chan *Subscriber
	unregister  chan *Subscriber
	broadcast   chan Event
	relay       Relay
}

// NewHub initializes an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan Event),
	}
}

// SetRelay routes published events through the relay. The relay is expected
// to deliver them back via Deliver, so that every process sharing the broker
// fans out the same frames.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Run serializes subscriber membership and broadcasts until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, campaign := range h.subscribers {
				for sub := range campaign {
					close(sub.Events)
				}
			}
			h.subscribers = make(map[string]map[*Subscriber]bool)
			return
		case sub := <-h.register:
			campaign := h.subscribers[sub.CampaignID]
			if campaign == nil {
				campaign = make(map[*Subscriber]bool)
				h.subscribers[sub.CampaignID] = campaign
			}
			campaign[sub] = true
		case sub := <-h.unregister:
			if campaign, ok := h.subscribers[sub.CampaignID]; ok {
				if _, ok := campaign[sub]; ok {
					delete(campaign, sub)
					close(sub.Events)
				}
				if len(campaign) == 0 {
					delete(h.subscribers, sub.CampaignID)
				}
			}
		case event := <-h.broadcast:
			frame, err := event.Encode()
			if err != nil {
				log.Printf("encode feed event: %v", err)
				continue
			}
			for sub := range h.subscribers[event.CampaignID] {
				select {
				case sub.Events <- frame:
				default:
					delete(h.subscribers[event.CampaignID], sub)
					close(sub.Events)
				}
			}
		}
	}
}

// Subscribe registers a subscriber for a campaign feed.
func (h *Hub) Subscribe(ctx context.Context, campaignID string) (*Subscriber, error) {
	sub := &Subscriber{
		CampaignID: campaignID,
		Events:     make(chan []byte, 16),
	}
	select {
	case h.register <- sub:
		return sub, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes a subscriber and closes its event channel.
func (h *Hub) Unsubscribe(ctx context.Context, sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-ctx.Done():
	}
}

// Publish sends an event to the campaign's subscribers. With a relay set the
// event goes to the broker instead and fans out when the relay delivers it.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if h.relay != nil {
		return h.relay.Publish(ctx, event)
	}
	return h.Deliver(ctx, event)
}

// Deliver hands an event to the fan-out loop directly, bypassing any relay.
func (h *Hub) Deliver(ctx context.Context, event Event) error {
	select {
	case h.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
