package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeVersion is written when the emitter leaves Version unset.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	StaffID string `json:"staffId"`
	Role    string `json:"role,omitempty"`
}

// SystemActor marks events produced by workers rather than staff.
var SystemActor = &ActorRef{StaffID: "system", Role: "system"}

// PayloadEnvelope wraps every outbox payload. Consumers dedupe on EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes with no
// version or no data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version < 1 {
		return PayloadEnvelope{}, fmt.Errorf("envelope version %d", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errors.New("envelope has no data")
	}
	return envelope, nil
}
