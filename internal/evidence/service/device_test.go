package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
)

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		devType   string
		browser   string
		os        string
	}{
		{
			name:      "windows chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			devType:   DeviceDesktop,
			browser:   "Chrome",
			os:        "Windows",
		},
		{
			name:      "mac edge",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			devType:   DeviceDesktop,
			browser:   "Edge",
			os:        "macOS",
		},
		{
			name:      "iphone safari",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			devType:   DeviceMobile,
			browser:   "Safari",
			os:        "iOS",
		},
		{
			name:      "android firefox",
			userAgent: "Mozilla/5.0 (Android 14; Mobile; rv:121.0) Gecko/121.0 Firefox/121.0",
			devType:   DeviceMobile,
			browser:   "Firefox",
			os:        "Android",
		},
		{
			name:      "ipad",
			userAgent: "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			devType:   DeviceTablet,
			browser:   "Safari",
			os:        "iOS",
		},
		{
			name:      "curl",
			userAgent: "curl/8.4.0",
			devType:   DeviceBot,
			browser:   "",
			os:        "",
		},
		{
			name:      "crawler",
			userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			devType:   DeviceBot,
		},
		{
			name:      "empty",
			userAgent: "",
			devType:   DeviceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ClassifyDevice(tt.userAgent)
			assert.Equal(t, tt.devType, info.Type)
			if tt.browser != "" {
				assert.Equal(t, tt.browser, info.Browser)
			}
			if tt.os != "" {
				assert.Equal(t, tt.os, info.OS)
			}
		})
	}
}

func TestNetworkGeolocation(t *testing.T) {
	t.Run("public address with consent", func(t *testing.T) {
		geo := networkGeolocation("203.0.113.50", true)
		require.NotNil(t, geo)
		assert.Equal(t, "network", geo.Source)
		assert.Equal(t, domain.LegalBasisConsent, geo.LegalBasis)
		assert.True(t, geo.ConsentGiven)
	})

	t.Run("public address without consent", func(t *testing.T) {
		geo := networkGeolocation("203.0.113.50", false)
		require.NotNil(t, geo)
		assert.Equal(t, domain.LegalBasisLegitimateInterest, geo.LegalBasis)
		assert.False(t, geo.ConsentGiven)
	})

	t.Run("never geolocated", func(t *testing.T) {
		for _, ip := range []string{"10.1.2.3", "192.168.0.1", "127.0.0.1", "169.254.1.1", "0.0.0.0", "::1", "fe80::1", "not-an-ip", ""} {
			assert.Nil(t, networkGeolocation(ip, true), "ip %q", ip)
		}
	})
}

func TestMergeClientGeolocation(t *testing.T) {
	t.Run("requires consent", func(t *testing.T) {
		existing := &domain.Geolocation{Source: "network", LegalBasis: domain.LegalBasisLegitimateInterest}
		merged := mergeClientGeolocation(existing, 52.52, 13.405, false)
		assert.Equal(t, "network", merged.Source)
		assert.Zero(t, merged.Latitude)
	})

	t.Run("overlays coordinates", func(t *testing.T) {
		existing := &domain.Geolocation{Source: "network", LegalBasis: domain.LegalBasisLegitimateInterest}
		merged := mergeClientGeolocation(existing, 52.52, 13.405, true)
		assert.Equal(t, "client", merged.Source)
		assert.Equal(t, 52.52, merged.Latitude)
		assert.Equal(t, 13.405, merged.Longitude)
		assert.Equal(t, domain.LegalBasisConsent, merged.LegalBasis)
		assert.True(t, merged.ConsentGiven)
	})

	t.Run("creates record when none exists", func(t *testing.T) {
		merged := mergeClientGeolocation(nil, 48.137, 11.576, true)
		require.NotNil(t, merged)
		assert.Equal(t, "client", merged.Source)
	})
}
