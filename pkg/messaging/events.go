package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types. The notification service consumes these and decides how to
// deliver them; this service only decides that a notification is due.
const (
	EventContractCreated  = "contract.created"
	EventContractSent     = "contract.sent"
	EventSignerOpened     = "contract.signer.opened"
	EventSignerSigned     = "contract.signer.signed"
	EventSignerDeclined   = "contract.signer.declined"
	EventSignerResend     = "contract.signer.resend"
	EventContractComplete = "contract.completed"
	EventContractDeclined = "contract.declined"
	EventContractVoided   = "contract.voided"
	EventContractExpired  = "contract.expired"
)

// Exchange names
const (
	ExchangeContractEvents = "contract.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ContractEvent is the payload for contract lifecycle events.
type ContractEvent struct {
	ContractID      string `json:"contract_id"`
	TemplateID      string `json:"template_id"`
	TemplateVersion string `json:"template_version"`
	SubscriberID    string `json:"subscriber_id"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
}

// SignerEvent is the payload for per-signer events. SigningReference carries
// the link the notification service embeds in the outbound email.
type SignerEvent struct {
	ContractID       string `json:"contract_id"`
	SignerID         string `json:"signer_id"`
	SignerEmail      string `json:"signer_email"`
	SignerName       string `json:"signer_name"`
	SignerStatus     string `json:"signer_status"`
	ContractStatus   string `json:"contract_status"`
	SigningReference string `json:"signing_reference,omitempty"`
}
