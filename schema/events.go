// Package schema defines the wire-level event model shared by the
// connection layer and the consumer adapters. Every inbound frame name
// maps to exactly one payload type; Decode is the single place that
// binding is enforced.
package schema

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EventType names an inbound server event.
type EventType string

const (
	EventNotificationNew         EventType = "notification:new"
	EventNotificationRead        EventType = "notification:read"
	EventNotificationUnreadCount EventType = "notification:unread-count"

	EventMessageNew         EventType = "message:new"
	EventMessageRead        EventType = "message:read"
	EventMessageDelivered   EventType = "message:delivered"
	EventMessageTyping      EventType = "message:typing"
	EventMessageUnreadCount EventType = "message:unread-count"

	EventPresenceUpdate EventType = "presence:update"
	EventPresenceList   EventType = "presence:list"

	EventAuctionBidPlaced    EventType = "auction:bid-placed"
	EventAuctionBidOutbid    EventType = "auction:bid-outbid"
	EventAuctionEndingSoon   EventType = "auction:ending-soon"
	EventAuctionEnded        EventType = "auction:ended"
	EventAuctionStarted      EventType = "auction:started"
	EventAuctionState        EventType = "auction:state"
	EventAuctionParticipants EventType = "auction:participants"

	EventCallIncoming     EventType = "call:incoming"
	EventCallAccepted     EventType = "call:accepted"
	EventCallRejected     EventType = "call:rejected"
	EventCallEnded        EventType = "call:ended"
	EventCallICECandidate EventType = "call:ice-candidate"
	EventCallOffer        EventType = "call:offer"
	EventCallAnswer       EventType = "call:answer"
)

// Event is one decoded inbound frame. Payload holds a pointer to the
// concrete payload struct for Type.
type Event struct {
	Type    EventType
	Payload any
}

// Decode binds a raw frame to its typed payload. Unknown event names
// are an error so the dispatch layer can drop them explicitly.
func Decode(event string, data []byte) (Event, error) {
	payload, err := newPayload(EventType(event))
	if err != nil {
		return Event{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, payload); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", event, err)
		}
	}
	return Event{Type: EventType(event), Payload: payload}, nil
}

func newPayload(typ EventType) (any, error) {
	switch typ {
	case EventNotificationNew:
		return new(Notification), nil
	case EventNotificationRead:
		return new(NotificationRead), nil
	case EventNotificationUnreadCount:
		return new(NotificationUnreadCount), nil
	case EventMessageNew:
		return new(ChatMessage), nil
	case EventMessageRead:
		return new(MessageRead), nil
	case EventMessageDelivered:
		return new(MessageDelivered), nil
	case EventMessageTyping:
		return new(MessageTyping), nil
	case EventMessageUnreadCount:
		return new(MessageUnreadCount), nil
	case EventPresenceUpdate:
		return new(PresenceUpdate), nil
	case EventPresenceList:
		return new(PresenceList), nil
	case EventAuctionBidPlaced:
		return new(AuctionBidPlaced), nil
	case EventAuctionBidOutbid:
		return new(AuctionBidOutbid), nil
	case EventAuctionEndingSoon:
		return new(AuctionEndingSoon), nil
	case EventAuctionEnded:
		return new(AuctionEnded), nil
	case EventAuctionStarted:
		return new(AuctionStarted), nil
	case EventAuctionState:
		return new(AuctionState), nil
	case EventAuctionParticipants:
		return new(AuctionParticipants), nil
	case EventCallIncoming:
		return new(CallIncoming), nil
	case EventCallAccepted, EventCallRejected, EventCallEnded:
		return new(CallUpdate), nil
	case EventCallICECandidate:
		return new(CallICECandidate), nil
	case EventCallOffer, EventCallAnswer:
		return new(CallSessionDescription), nil
	default:
		return nil, fmt.Errorf("unknown event %q", string(typ))
	}
}
