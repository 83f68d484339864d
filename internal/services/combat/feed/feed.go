// Package feed fans combat events out to subscribed clients.
//
// The hub keeps per-campaign subscriber sets and serializes membership and
// broadcast through channels consumed by Run. When a Redis relay is attached,
// published events travel through Redis first so that every process serving
// the same campaign sees them.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event types pushed over the campaign feed.
const (
	EventMirrorUpdated  = "mirror.updated"
	EventRoundAdvanced  = "round.advanced"
	EventCombatStarted  = "combat.started"
	EventCombatStopped  = "combat.stopped"
	EventRosterUpdated  = "roster.updated"
	EventConditionAdded = "condition.added"
)

// Event is a single feed message scoped to one campaign.
type Event struct {
	Type       string          `json:"type"`
	CampaignID string          `json:"campaignId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with the payload marshaled to JSON.
func NewEvent(eventType, campaignID string, payload any) (Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return Event{}, fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(campaignID) == "" {
		return Event{}, fmt.Errorf("campaign id is required")
	}
	event := Event{Type: eventType, CampaignID: campaignID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event payload: %w", err)
		}
		event.Payload = raw
	}
	return event, nil
}

// Encode renders the event as a JSON frame for transport.
func (e Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return raw, nil
}

// DecodeEvent parses a JSON frame back into an event.
func DecodeEvent(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if strings.TrimSpace(event.Type) == "" || strings.TrimSpace(event.CampaignID) == "" {
		return Event{}, fmt.Errorf("event type and campaign id are required")
	}
	return event, nil
}
