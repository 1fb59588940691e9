package useragent

import (
	"fmt"
	"os"
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Parser wraps the User-Agent parser with device type detection
type Parser struct {
	parser *uaparser.Parser
	log    *zap.Logger
}

// DeviceInfo represents parsed device information
type DeviceInfo struct {
	DeviceType string // mobile, desktop, tablet, bot, unknown
	Browser    string // Chrome, Firefox, Safari, etc.
	OS         string // Windows, iOS, Android, etc.
}

// NewParser creates a parser from a uap-core regexes.yaml file.
// An empty path uses the definitions bundled with uap-go.
func NewParser(regexFilePath string, log *zap.Logger) (*Parser, error) {
	if regexFilePath == "" {
		return NewDefault(log), nil
	}

	regexBytes, err := os.ReadFile(regexFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read regexes file %s: %w", regexFilePath, err)
	}

	parser, err := uaparser.NewFromBytes(regexBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create User-Agent parser: %w", err)
	}

	log.Info("User-Agent parser initialized", zap.String("regexes_file", regexFilePath))
	return &Parser{parser: parser, log: log}, nil
}

// NewDefault creates a parser from the definitions bundled with uap-go.
func NewDefault(log *zap.Logger) *Parser {
	return &Parser{parser: uaparser.NewFromSaved(), log: log}
}

// ParseUserAgent parses a User-Agent string. A nil Parser falls back to keyword detection.
func (p *Parser) ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" {
		return DeviceInfo{DeviceType: DeviceUnknown, Browser: DeviceUnknown, OS: DeviceUnknown}
	}
	if p == nil || p.parser == nil {
		return DeviceInfo{DeviceType: DetectDeviceType(userAgent), Browser: DeviceUnknown, OS: DeviceUnknown}
	}

	client := p.parser.Parse(userAgent)
	info := DeviceInfo{
		Browser:    formatFamily(client.UserAgent.Family),
		OS:         formatFamily(client.Os.Family),
		DeviceType: determineDeviceType(client, userAgent),
	}

	if p.log != nil {
		p.log.Debug("parsed User-Agent",
			zap.String("device_type", info.DeviceType),
			zap.String("browser", info.Browser),
			zap.String("os", info.OS),
		)
	}
	return info
}

// DetectDeviceType classifies a User-Agent by keywords only.
func DetectDeviceType(userAgent string) string {
	switch {
	case userAgent == "":
		return DeviceUnknown
	case containsAny(userAgent, botIndicators):
		return DeviceBot
	case containsAny(userAgent, []string{"iPad", "Tablet"}):
		return DeviceTablet
	case containsAny(userAgent, []string{"Mobile", "Android", "iPhone"}):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

var (
	botIndicators = []string{
		"Googlebot", "Bingbot", "Slurp", "DuckDuckBot", "Baiduspider",
		"YandexBot", "facebookexternalhit", "Twitterbot", "LinkedInBot",
		"WhatsApp", "Telegram", "SkypeUriPreview", "bot", "crawler",
		"spider", "scraper",
	}
	mobileDevices = []string{"iPhone", "Android", "BlackBerry", "Windows Phone", "Mobile", "Phone"}
	tabletDevices = []string{"iPad", "Tablet", "Kindle", "Surface"}
	mobileOSes    = []string{"iOS", "Android", "Windows Phone", "BlackBerry OS", "Firefox OS", "Sailfish OS"}
	desktopOSes   = []string{"Windows", "Mac OS X", "macOS", "Linux", "Ubuntu", "Chrome OS", "FreeBSD", "OpenBSD", "NetBSD"}
)

// determineDeviceType determines the device type based on parsed client info and raw User-Agent
func determineDeviceType(client *uaparser.Client, userAgent string) string {
	if containsAny(client.UserAgent.Family, botIndicators) || containsAny(userAgent, botIndicators) {
		return DeviceBot
	}

	if family := client.Device.Family; family != "" && family != "Other" {
		if containsAny(family, tabletDevices) {
			return DeviceTablet
		}
		if containsAny(family, mobileDevices) {
			return DeviceMobile
		}
	}

	osFamily := client.Os.Family
	if containsAny(osFamily, mobileOSes) {
		if isTabletOS(osFamily, userAgent) {
			return DeviceTablet
		}
		return DeviceMobile
	}

	if containsAny(osFamily, desktopOSes) {
		return DeviceDesktop
	}
	return DeviceUnknown
}

// isTabletOS tells iPad from iPhone and Android tablets from phones
func isTabletOS(osFamily, userAgent string) bool {
	if containsFold(osFamily, "iOS") {
		return containsFold(userAgent, "iPad")
	}
	if containsFold(osFamily, "Android") {
		// Android tablets typically don't have "Mobile" in User-Agent
		return !containsFold(userAgent, "Mobile")
	}
	return false
}

// Helper functions

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if containsFold(s, n) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	if s == "" || substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// formatFamily replaces empty and "Other" with "unknown"
func formatFamily(s string) string {
	if s == "" || s == "Other" {
		return DeviceUnknown
	}
	return s
}
