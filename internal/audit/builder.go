// Package audit derives a chronologically ordered event trail from a
// contract's accumulated state for compliance export. It is a read-only
// projection and holds no state of its own.
package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
)

// Event is one entry in the compliance trail.
type Event struct {
	At       time.Time `json:"at"`
	Event    string    `json:"event"`
	SignerID string    `json:"signer_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// BuildTrail flattens the contract's lifecycle dates, per-signer access logs
// and terminal events into one list ordered by time. Equal timestamps keep
// insertion order, so a signer's own entries stay grouped.
func BuildTrail(c *domain.SignedContract) []Event {
	var events []Event

	events = append(events, Event{
		At:     c.CreatedAt,
		Event:  "contract_created",
		Detail: fmt.Sprintf("template %s v%s", c.TemplateID, c.TemplateVersion),
	})

	if c.Dates.Sent != nil {
		events = append(events, Event{At: *c.Dates.Sent, Event: "contract_sent"})
	}
	if c.Dates.FirstOpened != nil {
		events = append(events, Event{At: *c.Dates.FirstOpened, Event: "contract_first_opened"})
	}

	for i := range c.Signers {
		signer := &c.Signers[i]

		if signer.SentAt != nil {
			events = append(events, Event{
				At:       *signer.SentAt,
				Event:    "signer_sent",
				SignerID: signer.ID,
				Detail:   signer.Email,
			})
		}

		if signer.Evidence != nil {
			for _, entry := range signer.Evidence.AccessLog {
				events = append(events, Event{
					At:       entry.At,
					Event:    entry.Action,
					SignerID: signer.ID,
					Detail:   entry.Detail,
				})
			}
		}

		if signer.SignedAt != nil {
			events = append(events, Event{
				At:       *signer.SignedAt,
				Event:    "signer_signed",
				SignerID: signer.ID,
			})
		}
		if signer.DeclinedAt != nil {
			events = append(events, Event{
				At:       *signer.DeclinedAt,
				Event:    "signer_declined",
				SignerID: signer.ID,
				Detail:   signer.DeclineReason,
			})
		}
	}

	if c.Dates.Completed != nil {
		events = append(events, Event{At: *c.Dates.Completed, Event: "contract_completed"})
	}
	if c.Dates.Voided != nil {
		events = append(events, Event{At: *c.Dates.Voided, Event: "contract_voided"})
	}
	if c.Status == domain.ContractStatusExpired && c.Dates.Expires != nil {
		events = append(events, Event{At: *c.Dates.Expires, Event: "contract_expired"})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})

	return events
}
