package provider

import (
	"context"
	"time"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/pkg/errors"
)

// Native is the trivial passthrough adapter for contracts signed through the
// built-in signing flow. The external ID is the contract ID itself and every
// status is already canonical.
type Native struct{}

// NewNative creates the native adapter.
func NewNative() *Native {
	return &Native{}
}

func (n *Native) Name() string {
	return NameNative
}

// Send is a no-op dispatch: the workflow engine already owns the contract.
func (n *Native) Send(ctx context.Context, c *domain.SignedContract) (*SendResult, error) {
	return &SendResult{
		ExternalID: c.ID,
		Status:     domain.ContractStatusSent,
	}, nil
}

// GetStatus has no remote to ask; the canonical record is authoritative.
func (n *Native) GetStatus(ctx context.Context, externalID string) (*StatusSnapshot, error) {
	return &StatusSnapshot{
		Provider:   NameNative,
		ExternalID: externalID,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// ParseWebhook never applies: the native flow produces no webhooks.
func (n *Native) ParseWebhook(payload []byte) (*StatusSnapshot, error) {
	return nil, errors.BadRequest("the native provider does not emit webhooks")
}

// DownloadFinalDocument has no remote copy to fetch.
func (n *Native) DownloadFinalDocument(ctx context.Context, externalID string) ([]byte, error) {
	return nil, errors.BadRequest("the native provider stores documents locally")
}
