package realtime

import "github.com/motorlot/realtime-go/schema"

// Call signaling frames are fire-and-forget passthrough: the webRTC
// negotiation itself happens peer to peer, the realtime connection
// only relays the control frames. Inbound counterparts arrive as
// call:* events on the bus.

// StartCall initiates a call with the given callee.
func (c *Client) StartCall(callID, calleeID, kind string) error {
	return c.mgr.Emit(schema.FrameCallStart, schema.CallStartPayload{CallID: callID, CalleeID: calleeID, Kind: kind})
}

// AcceptCall accepts an incoming call.
func (c *Client) AcceptCall(callID string) error {
	return c.mgr.Emit(schema.FrameCallAccept, schema.CallControlPayload{CallID: callID})
}

// RejectCall declines an incoming call with an optional reason.
func (c *Client) RejectCall(callID, reason string) error {
	return c.mgr.Emit(schema.FrameCallReject, schema.CallControlPayload{CallID: callID, Reason: reason})
}

// EndCall hangs up an active call.
func (c *Client) EndCall(callID string) error {
	return c.mgr.Emit(schema.FrameCallEnd, schema.CallControlPayload{CallID: callID})
}

// SendICECandidate relays one ICE candidate to the peer.
func (c *Client) SendICECandidate(callID, candidate string) error {
	return c.mgr.Emit(schema.FrameCallICE, schema.CallICECandidate{CallID: callID, Candidate: candidate})
}

// SendOffer relays the SDP offer to the peer.
func (c *Client) SendOffer(callID, sdp string) error {
	return c.mgr.Emit(schema.FrameCallOffer, schema.CallSessionDescription{CallID: callID, SDP: sdp})
}

// SendAnswer relays the SDP answer to the peer.
func (c *Client) SendAnswer(callID, sdp string) error {
	return c.mgr.Emit(schema.FrameCallAnswer, schema.CallSessionDescription{CallID: callID, SDP: sdp})
}
