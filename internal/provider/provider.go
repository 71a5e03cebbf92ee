// Package provider integrates external e-signature vendors behind one
// adapter interface. Every vendor's status vocabulary is mapped into the
// canonical contract/signer state machine; the reverse direction never
// exists.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/pkg/errors"
)

// Provider names
const (
	NameNative      = "native"
	NameDocuSign    = "docusign"
	NameAdobeSign   = "adobesign"
	NameDropboxSign = "dropboxsign"
)

// StatusSnapshot is a provider's view of a contract, already translated into
// the canonical vocabulary. Applying a snapshot is a monotonic-forward merge,
// so the same snapshot can be applied any number of times.
type StatusSnapshot struct {
	Provider   string
	ExternalID string
	// RawStatus is the vendor's own status string, kept for the integration
	// record and for debugging.
	RawStatus string

	ContractStatus domain.ContractStatus
	Signers        []SignerSnapshot

	CompletedAt *time.Time
	ObservedAt  time.Time
}

// SignerSnapshot is one signer's state in a provider snapshot. Signers are
// matched by email because vendors do not know our signer IDs.
type SignerSnapshot struct {
	Email    string
	Status   domain.SignerStatus
	At       *time.Time
	Declined string
}

// SendResult is returned by a successful dispatch to a provider.
type SendResult struct {
	ExternalID string
	Status     domain.ContractStatus
}

// Provider is the uniform adapter boundary. Implementations exist once for
// the native engine and once per external vendor.
type Provider interface {
	// Name returns the registry key for this provider.
	Name() string

	// Send pushes the contract out for signing and returns the external
	// binding. A failed Send must leave no partial vendor state behind that
	// would make a retry unsafe.
	Send(ctx context.Context, c *domain.SignedContract) (*SendResult, error)

	// GetStatus fetches the vendor's current view of the engagement.
	GetStatus(ctx context.Context, externalID string) (*StatusSnapshot, error)

	// ParseWebhook translates a raw vendor webhook payload into a snapshot.
	// Parsing is pure: it never touches vendor APIs or local state.
	ParseWebhook(payload []byte) (*StatusSnapshot, error)

	// DownloadFinalDocument fetches the signed document bytes.
	DownloadFinalDocument(ctx context.Context, externalID string) ([]byte, error)
}

// Registry looks providers up by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("unknown e-signature provider %q", name))
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
