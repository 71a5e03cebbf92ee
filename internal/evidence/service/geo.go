package service

import (
	"net/netip"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
)

// networkGeolocation builds the network-origin geolocation record for an IP
// address. Private, loopback and link-local addresses are never geolocated;
// they identify the deployment, not the signer.
func networkGeolocation(ip string, consentGiven bool) *domain.Geolocation {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return nil
	}

	legalBasis := domain.LegalBasisLegitimateInterest
	if consentGiven {
		legalBasis = domain.LegalBasisConsent
	}

	// Country resolution happens downstream in the evidence pipeline; the
	// record here fixes the address, basis and consent at capture time.
	return &domain.Geolocation{
		Source:       "network",
		LegalBasis:   legalBasis,
		ConsentGiven: consentGiven,
	}
}

// grantGeolocationConsent upgrades the legal basis of an existing record when
// a consent grant arrives without coordinates. A missing record stays missing;
// consent alone captures nothing.
func grantGeolocationConsent(existing *domain.Geolocation) *domain.Geolocation {
	if existing == nil {
		return nil
	}
	existing.ConsentGiven = true
	existing.LegalBasis = domain.LegalBasisConsent
	return existing
}

// mergeClientGeolocation overlays browser-reported coordinates onto the
// network record. Client coordinates always require explicit consent.
func mergeClientGeolocation(existing *domain.Geolocation, lat, lon float64, consentGiven bool) *domain.Geolocation {
	if !consentGiven {
		return existing
	}
	if existing == nil {
		existing = &domain.Geolocation{Source: "client"}
	} else {
		existing.Source = "client"
	}
	existing.Latitude = lat
	existing.Longitude = lon
	existing.LegalBasis = domain.LegalBasisConsent
	existing.ConsentGiven = true
	return existing
}
