package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/contract/repository"
	"github.com/sealflow/sealflow-backend/internal/provider"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/messaging"
)

// mutate runs fn against a fresh read of the contract and persists the
// result under compare-and-swap, retrying on version conflicts. Expiry is
// checked on entry: a contract past its expiry instant is coerced and
// persisted, and the mutation is refused.
func (s *WorkflowService) mutate(ctx context.Context, contractID string, fn func(c *domain.SignedContract) error) (*domain.SignedContract, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		c, err := s.contracts.GetByID(ctx, contractID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		if c.IsExpired(now) && !c.Status.IsTerminal() {
			expireContract(c, now)
			if err := s.contracts.Update(ctx, c); err != nil {
				if errors.Is(err, repository.ErrVersionConflict) {
					continue
				}
				return nil, err
			}
			s.publishContractEvent(ctx, messaging.EventContractExpired, c, "")
			return nil, errors.Expired("contract")
		}
		if c.Status == domain.ContractStatusExpired {
			return nil, errors.Expired("contract")
		}

		if err := fn(c); err != nil {
			return nil, err
		}
		c.Touch(now)

		if err := s.contracts.Update(ctx, c); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.logger.Debug().
					Str("contract_id", contractID).
					Int("attempt", attempt+1).
					Msg("version conflict, retrying")
				continue
			}
			return nil, err
		}
		return c, nil
	}
	return nil, repository.ErrVersionConflict
}

// coerceExpiry applies the lazy expiry rule on a read path. Persistence is
// best-effort: the caller gets the coerced state either way.
func (s *WorkflowService) coerceExpiry(ctx context.Context, c *domain.SignedContract) *domain.SignedContract {
	now := time.Now().UTC()
	if !c.IsExpired(now) || c.Status.IsTerminal() {
		return c
	}

	expireContract(c, now)
	if err := s.contracts.Update(ctx, c); err != nil {
		s.logger.Warn().Err(err).Str("contract_id", c.ID).Msg("failed to persist lazy expiry")
	} else {
		s.publishContractEvent(ctx, messaging.EventContractExpired, c, "")
	}
	return c
}

// expireContract coerces the contract and its open signers to expired.
func expireContract(c *domain.SignedContract, now time.Time) {
	c.Status = domain.ContractStatusExpired
	expireOpenSigners(c, now)
	c.Touch(now)
}

// expireOpenSigners expires every signer who has not reached a terminal
// state. Completed and declined signers keep their records.
func expireOpenSigners(c *domain.SignedContract, now time.Time) {
	for i := range c.Signers {
		if !c.Signers[i].Status.IsTerminal() {
			c.Signers[i].Status = domain.SignerStatusExpired
		}
	}
}

// contractStatusRank orders contract states for monotonic-forward provider
// reconciliation.
func contractStatusRank(s domain.ContractStatus) int {
	switch s {
	case domain.ContractStatusDraft:
		return 0
	case domain.ContractStatusSent:
		return 1
	case domain.ContractStatusPartiallySigned:
		return 2
	case domain.ContractStatusFullySigned:
		return 3
	case domain.ContractStatusCompleted:
		return 4
	case domain.ContractStatusDeclined, domain.ContractStatusExpired, domain.ContractStatusVoided:
		return 5
	}
	return 0
}

// ApplyProviderSnapshot merges a provider's view of a contract into the
// canonical record. The merge only ever moves states forward, so replayed
// and out-of-order webhooks converge on the same result.
func (s *WorkflowService) ApplyProviderSnapshot(ctx context.Context, snap *provider.StatusSnapshot) (*domain.SignedContract, error) {
	existing, err := s.contracts.GetByExternalID(ctx, snap.Provider, snap.ExternalID)
	if err != nil {
		return nil, err
	}

	var sealed bool
	c, err := s.mutate(ctx, existing.ID, func(c *domain.SignedContract) error {
		sealed = false
		now := time.Now().UTC()

		for _, ss := range snap.Signers {
			signer := findSignerByEmail(c, ss.Email)
			if signer == nil || ss.Status == "" {
				continue
			}
			if !ss.Status.AdvancesFrom(signer.Status) {
				continue
			}
			applySignerSnapshot(signer, ss, snap.Provider, now)
		}

		if snap.ContractStatus != "" && !c.Status.IsTerminal() &&
			contractStatusRank(snap.ContractStatus) > contractStatusRank(c.Status) {
			c.Status = snap.ContractStatus
			switch snap.ContractStatus {
			case domain.ContractStatusVoided:
				t := now
				if c.Dates.Voided == nil {
					c.Dates.Voided = &t
				}
				expireOpenSigners(c, now)
			case domain.ContractStatusExpired:
				expireOpenSigners(c, now)
			case domain.ContractStatusFullySigned:
				markCompleted(c, snap, now)
			}
		}

		// Vendor envelope status can lag its own recipient events, so the
		// contract status is re-derived from the merged signer states. The
		// conjunction over signers is authoritative, not the envelope.
		if !c.Status.IsTerminal() {
			switch {
			case c.AllSigned() && contractStatusRank(domain.ContractStatusFullySigned) > contractStatusRank(c.Status):
				c.Status = domain.ContractStatusFullySigned
				markCompleted(c, snap, now)
			case c.SignedCount() > 0 && contractStatusRank(domain.ContractStatusPartiallySigned) > contractStatusRank(c.Status):
				c.Status = domain.ContractStatusPartiallySigned
			}
		}

		if c.Status.IsSealed() && c.Security.FinalHash == "" && c.AllSigned() {
			finalHash, err := s.integrity.SealDocument(c)
			if err != nil {
				return err
			}
			c.Security.FinalHash = finalHash
			sealed = true
		}

		if c.Integration != nil {
			c.Integration.ExternalStatus = snap.RawStatus
			t := snap.ObservedAt
			c.Integration.SyncedAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sealed {
		s.publishContractEvent(ctx, messaging.EventContractComplete, c, "")
	}

	s.logger.Info().
		Str("contract_id", c.ID).
		Str("provider", snap.Provider).
		Str("external_status", snap.RawStatus).
		Str("status", string(c.Status)).
		Msg("provider snapshot applied")

	return c, nil
}

// markCompleted fixes the completion instant once, preferring the vendor's
// reported time over the local clock.
func markCompleted(c *domain.SignedContract, snap *provider.StatusSnapshot, now time.Time) {
	if c.Dates.Completed != nil {
		return
	}
	completed := now
	if snap.CompletedAt != nil {
		completed = *snap.CompletedAt
	}
	c.Dates.Completed = &completed
}

func findSignerByEmail(c *domain.SignedContract, email string) *domain.Signer {
	email = strings.ToLower(email)
	for i := range c.Signers {
		if strings.ToLower(c.Signers[i].Email) == email {
			return &c.Signers[i]
		}
	}
	return nil
}

// applySignerSnapshot advances one signer to the provider-observed state.
// Signatures captured by an external vendor have no local payload, so a
// placeholder referencing the vendor engagement stands in for it.
func applySignerSnapshot(signer *domain.Signer, ss provider.SignerSnapshot, providerName string, now time.Time) {
	at := now
	if ss.At != nil {
		at = *ss.At
	}
	signer.Status = ss.Status

	switch ss.Status {
	case domain.SignerStatusSent:
		if signer.SentAt == nil {
			signer.SentAt = &at
		}
	case domain.SignerStatusOpened:
		if signer.OpenedAt == nil {
			signer.OpenedAt = &at
		}
	case domain.SignerStatusSigned:
		if signer.SignedAt == nil {
			signer.SignedAt = &at
		}
		if signer.Signature == nil {
			signer.Signature = &domain.Signature{
				Type:     "external",
				Payload:  fmt.Sprintf("captured by %s", providerName),
				SignedAt: at,
			}
		}
	case domain.SignerStatusDeclined:
		if signer.DeclinedAt == nil {
			signer.DeclinedAt = &at
		}
		if ss.Declined != "" {
			signer.DeclineReason = ss.Declined
		}
	}
}
