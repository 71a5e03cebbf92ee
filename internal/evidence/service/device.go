package service

import (
	"strings"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
)

// Device types
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// ClassifyDevice derives a coarse device classification from the user-agent
// string. The classification is evidence, not enforcement, so a spoofed
// user-agent only pollutes the spoofing party's own evidence record.
func ClassifyDevice(userAgent string) domain.DeviceInfo {
	ua := strings.ToLower(userAgent)
	info := domain.DeviceInfo{
		Type:    deviceType(ua),
		Browser: browserName(ua),
		OS:      osName(ua),
	}
	return info
}

func deviceType(ua string) string {
	switch {
	case ua == "":
		return DeviceUnknown
	case containsAny(ua, "bot", "crawler", "spider", "curl/", "wget/"):
		return DeviceBot
	case strings.Contains(ua, "ipad") || (strings.Contains(ua, "tablet") && !strings.Contains(ua, "mobile")):
		return DeviceTablet
	case containsAny(ua, "mobile", "iphone", "android"):
		return DeviceMobile
	case containsAny(ua, "windows", "macintosh", "x11", "linux"):
		return DeviceDesktop
	}
	return DeviceUnknown
}

func browserName(ua string) string {
	// Order matters: Chrome UAs contain "safari", Edge UAs contain "chrome".
	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case strings.Contains(ua, "opr/"):
		return "Opera"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "chrome/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	}
	return ""
}

func osName(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return "Linux"
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
