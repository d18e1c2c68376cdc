package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/c3i/globe/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	// client -> hub
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"
	TypeAddWaypoint    = "add_waypoint"
	TypeUpdateWaypoint = "update_waypoint"
	TypeDeleteWaypoint = "delete_waypoint"

	// hub -> client
	TypeSnapshot = "snapshot"
	TypeAck      = "ack"
)

// Error codes carried in AckMessage.Code.
const (
	CodeNotFound     = "not_found"
	CodeEmptyPatch   = "empty_patch"
	CodeInvalid      = "invalid"
	CodeClosed       = "closed"
	CodeDisconnected = "disconnected" // client-side only
	CodeInternal     = "internal"
)

// Envelope wraps all messages sent over the WebSocket except acks.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the hub's response to a request. Error is empty on success.
type AckMessage struct {
	Type      string `json:"type"` // always "ack"
	For       string `json:"for"`  // the message type being acknowledged
	RequestID string `json:"requestId"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Err returns the remote error carried by the ack, or nil.
func (a AckMessage) Err() error {
	if a.Error == "" && a.Code == "" {
		return nil
	}
	return &RemoteError{Code: a.Code, Message: a.Error}
}

// RemoteError is a write failure reported by the hub.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("hub rejected request (%s): %s", e.Code, e.Message)
}

// SubscribePayload requests the snapshot stream.
type SubscribePayload struct {
	RequestID string `json:"requestId"`
}

// AddWaypointPayload carries a new waypoint. ID and createdAt are assigned by the hub.
type AddWaypointPayload struct {
	RequestID string        `json:"requestId"`
	Waypoint  core.Waypoint `json:"waypoint"`
}

// UpdateWaypointPayload carries a label and/or color change.
type UpdateWaypointPayload struct {
	RequestID string             `json:"requestId"`
	ID        string             `json:"id"`
	Patch     core.WaypointPatch `json:"patch"`
}

// DeleteWaypointPayload names the waypoint to remove.
type DeleteWaypointPayload struct {
	RequestID string `json:"requestId"`
	ID        string `json:"id"`
}

// SnapshotPayload is the complete current collection.
type SnapshotPayload struct {
	Waypoints []core.Waypoint `json:"waypoints"`
}

// MarshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func MarshalEnvelope(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
