package schema

import "github.com/shopspring/decimal"

// Outbound frame names (client to server).
const (
	FrameAuthenticate     = "authenticate"
	FrameRoomJoin         = "room:join"
	FrameRoomLeave        = "room:leave"
	FramePresenceAnnounce = "presence:announce"
	FrameMessageSend      = "message:send"
	FrameMessageRead      = "message:read"
	FrameTypingStart      = "typing:start"
	FrameTypingStop       = "typing:stop"
	FrameAuctionJoin      = "auction:join"
	FrameAuctionLeave     = "auction:leave"
	FrameAuctionBid       = "auction:bid"
	FrameCallStart        = "call:start"
	FrameCallAccept       = "call:accept"
	FrameCallReject       = "call:reject"
	FrameCallEnd          = "call:end"
	FrameCallICE          = "call:ice-candidate"
	FrameCallOffer        = "call:offer"
	FrameCallAnswer       = "call:answer"
	FrameHeartbeat        = "heartbeat"
)

// AuthenticatePayload re-presents the session identity after every
// (re)connect.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// RoomPayload joins or leaves a logical room.
type RoomPayload struct {
	RoomID   string `json:"roomId"`
	RoomType string `json:"roomType"`
}

// PresenceAnnouncePayload marks the session as online.
type PresenceAnnouncePayload struct {
	UserID string `json:"userId"`
}

// MessageSendPayload submits a conversation message.
type MessageSendPayload struct {
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	TempID         string `json:"tempId,omitempty"`
}

// MessageAck is the server's reply to a message send.
type MessageAck struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessageReadPayload marks conversation messages as read. Empty
// MessageIDs marks the whole conversation.
type MessageReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// TypingPayload scopes a typing indicator to one conversation.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// AuctionJoinPayload requests entry into a live auction.
type AuctionJoinPayload struct {
	AuctionID string `json:"auctionId"`
}

// AuctionJoinAck is the server's reply to an auction join.
type AuctionJoinAck struct {
	Success bool          `json:"success"`
	State   *AuctionState `json:"state,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// AuctionLeavePayload exits a live auction.
type AuctionLeavePayload struct {
	AuctionID string `json:"auctionId"`
}

// BidPayload places a bid.
type BidPayload struct {
	AuctionID string          `json:"auctionId"`
	Amount    decimal.Decimal `json:"amount"`
}

// BidAck is the server's reply to a bid.
type BidAck struct {
	Success bool   `json:"success"`
	BidID   string `json:"bidId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CallStartPayload initiates a call.
type CallStartPayload struct {
	CallID   string `json:"callId"`
	CalleeID string `json:"calleeId"`
	Kind     string `json:"kind"`
}

// CallControlPayload accepts, rejects, or ends a call.
type CallControlPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}
