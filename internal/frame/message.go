package frame

import (
	"encoding/json"
	"fmt"
)

// Status is the polling status code carried by a frame message.
type Status int

const (
	// StatusPending means the authorization request is still waiting on
	// the user.
	StatusPending Status = 100
	// StatusApproved means the user accepted the request.
	StatusApproved Status = 200
	// StatusDeveloperError means the request was malformed or
	// misconfigured by the relying application.
	StatusDeveloperError Status = 400
	// StatusRejected means the user declined the request.
	StatusRejected Status = 403
)

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeveloperError, StatusRejected:
		return true
	}
	return false
}

// Message is the wire contract between the embedded frame and the parent
// context. It arrives as untrusted data over a generic cross-context
// channel and must pass admission checks before any field is used.
type Message struct {
	State        string `json:"state"`
	QR           string `json:"qr,omitempty"`
	Status       Status `json:"status"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Envelope pairs a message with its provenance: the origin it was sent
// from and the identity of the sending frame instance.
type Envelope struct {
	Origin string
	Source string
	Data   Message
}

// ParseMessage decodes raw inbound data into a Message, rejecting
// payloads whose status is not one of the defined codes. Unknown fields
// are ignored.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding frame message: %w", err)
	}
	if !msg.Status.valid() {
		return Message{}, fmt.Errorf("unknown frame message status %d", msg.Status)
	}
	return msg, nil
}
