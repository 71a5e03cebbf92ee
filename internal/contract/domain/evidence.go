package domain

import "time"

// Evidence is the per-signer tamper-evidence record captured during a signing
// session. Evidence is best-effort: its absence never invalidates a completed
// signature.
type Evidence struct {
	SessionID string `json:"session_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	Device      DeviceInfo     `json:"device"`
	Geolocation *Geolocation   `json:"geolocation,omitempty"`
	Telemetry   Telemetry      `json:"telemetry"`
	Biometric   map[string]any `json:"biometric,omitempty"`

	// AccessLog is append-only.
	AccessLog []AccessLogEntry `json:"access_log"`
}

// AppendLog appends a timestamped entry to the access log.
func (e *Evidence) AppendLog(now time.Time, action, detail, ip string) {
	e.AccessLog = append(e.AccessLog, AccessLogEntry{
		At:        now,
		Action:    action,
		Detail:    detail,
		IPAddress: ip,
	})
}

// Access log actions
const (
	AccessActionSessionStarted     = "session_started"
	AccessActionSessionResumed     = "session_resumed"
	AccessActionEvidenceCollected  = "evidence_collected"
	AccessActionSignatureCompleted = "signature_completed"
	AccessActionDeclined           = "declined"
)

// AccessLogEntry is one timestamped action in the append-only access log.
type AccessLogEntry struct {
	At        time.Time `json:"at"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// DeviceInfo is the classification derived from user-agent and client hints.
type DeviceInfo struct {
	// Type is one of desktop, mobile, tablet, bot, unknown
	Type    string `json:"type"`
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
}

// Geolocation legal bases
const (
	LegalBasisLegitimateInterest = "legitimate_interest"
	LegalBasisConsent            = "consent"
)

// Geolocation is the best-effort network-origin location. Private and
// loopback addresses are never geolocated.
type Geolocation struct {
	Country      string  `json:"country,omitempty"`
	Region       string  `json:"region,omitempty"`
	City         string  `json:"city,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	Source       string  `json:"source,omitempty"`
	LegalBasis   string  `json:"legal_basis"`
	ConsentGiven bool    `json:"consent_given"`
}

// Telemetry is the behavioral interaction record. Sample arrays only ever
// grow; ScrollDepth only ever rises; TimeOnPage reflects the latest report.
type Telemetry struct {
	MouseSamples     []MotionSample `json:"mouse_samples,omitempty"`
	KeystrokeSamples []KeySample    `json:"keystroke_samples,omitempty"`
	ScrollDepth      float64        `json:"scroll_depth"`
	TimeOnPageSec    int            `json:"time_on_page_sec"`
}

// MotionSample is one pointer-position sample.
type MotionSample struct {
	X    int   `json:"x"`
	Y    int   `json:"y"`
	AtMS int64 `json:"at_ms"`
}

// KeySample records keystroke timing, never key content.
type KeySample struct {
	AtMS    int64 `json:"at_ms"`
	DwellMS int   `json:"dwell_ms"`
}
