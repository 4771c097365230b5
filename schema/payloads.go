package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification is a persisted notification record as pushed by the
// server and as written through the notification store.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  string         `json:"priority"`
	IsRead    bool           `json:"isRead"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
}

// NotificationRead reports a single record transitioning to read.
type NotificationRead struct {
	NotificationID string    `json:"notificationId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// NotificationUnreadCount carries the server-side unread total.
type NotificationUnreadCount struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

// ChatMessage is one conversation message.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	TempID         string    `json:"tempId,omitempty"`
	SentAt         time.Time `json:"sentAt"`
	Delivered      bool      `json:"delivered,omitempty"`
	Read           bool      `json:"read,omitempty"`
}

// MessageRead is a read receipt for one or more messages.
type MessageRead struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReaderID       string   `json:"readerId"`
}

// MessageDelivered acknowledges server-side delivery of a message.
type MessageDelivered struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// MessageTyping signals a peer starting or stopping typing.
type MessageTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Typing         bool   `json:"typing"`
}

// MessageUnreadCount carries the per-conversation unread total.
type MessageUnreadCount struct {
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count"`
}

// PresenceUpdate reports a single user's online state.
type PresenceUpdate struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// PresenceList is the full online roster, sent after announcing.
type PresenceList struct {
	Users []PresenceUpdate `json:"users"`
}

// AuctionState is the full live state of an auction, replaced wholesale
// on every state frame subject to the adapter's monotonic price merge.
type AuctionState struct {
	AuctionID        string          `json:"auctionId"`
	CurrentPrice     decimal.Decimal `json:"currentPrice"`
	TotalBids        int             `json:"totalBids"`
	ParticipantCount int             `json:"participantsCount"`
	EndTime          time.Time       `json:"endTime"`
	Status           string          `json:"status"`
	LastBidderID     string          `json:"lastBidder,omitempty"`
}

// AuctionBidPlaced is one accepted bid, applied incrementally.
type AuctionBidPlaced struct {
	AuctionID string          `json:"auctionId"`
	BidID     string          `json:"bidId"`
	BidderID  string          `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	TotalBids int             `json:"totalBids"`
	PlacedAt  time.Time       `json:"placedAt"`
}

// AuctionBidOutbid tells a previous high bidder they lost the lead.
type AuctionBidOutbid struct {
	AuctionID string          `json:"auctionId"`
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
}

// AuctionEndingSoon warns that an auction is about to close.
type AuctionEndingSoon struct {
	AuctionID string    `json:"auctionId"`
	EndTime   time.Time `json:"endTime"`
}

// AuctionEnded reports the final outcome of an auction.
type AuctionEnded struct {
	AuctionID  string          `json:"auctionId"`
	WinnerID   string          `json:"winnerId,omitempty"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
}

// AuctionStarted announces a live auction opening.
type AuctionStarted struct {
	AuctionID  string          `json:"auctionId"`
	StartPrice decimal.Decimal `json:"startPrice"`
	EndTime    time.Time       `json:"endTime"`
}

// AuctionParticipants carries the current participant count.
type AuctionParticipants struct {
	AuctionID string `json:"auctionId"`
	Count     int    `json:"count"`
}

// CallIncoming announces an incoming call.
type CallIncoming struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	CalleeID string `json:"calleeId"`
	Kind     string `json:"kind"`
}

// CallUpdate covers call accepted/rejected/ended transitions.
type CallUpdate struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// CallICECandidate relays one ICE candidate between peers.
type CallICECandidate struct {
	CallID    string `json:"callId"`
	Candidate string `json:"candidate"`
}

// CallSessionDescription relays an SDP offer or answer.
type CallSessionDescription struct {
	CallID string `json:"callId"`
	SDP    string `json:"sdp"`
}
