package types

import (
	"strings"
	"unicode"
)

// Status represents the canonical, provider-independent presence state
type Status string

const (
	StatusAvailable    Status = "Available"
	StatusBusy         Status = "Busy"
	StatusOnACall      Status = "OnACall"
	StatusInMeeting    Status = "InMeeting"
	StatusDoNotDisturb Status = "DoNotDisturb"
	StatusAway         Status = "Away"
	StatusOnBreak      Status = "OnBreak"
	StatusOffline      Status = "Offline"
	StatusUnknown      Status = "Unknown"
)

// AllStatuses returns all canonical statuses
func AllStatuses() []Status {
	return []Status{
		StatusAvailable,
		StatusBusy,
		StatusOnACall,
		StatusInMeeting,
		StatusDoNotDisturb,
		StatusAway,
		StatusOnBreak,
		StatusOffline,
		StatusUnknown,
	}
}

// IsCanonical checks if the status is one of the fixed enumeration values.
// Normalization of an unrecognized upstream token yields a non-canonical
// echo status, which callers must treat as a known-unknown state.
func (s Status) IsCanonical() bool {
	switch s {
	case StatusAvailable,
		StatusBusy,
		StatusOnACall,
		StatusInMeeting,
		StatusDoNotDisturb,
		StatusAway,
		StatusOnBreak,
		StatusOffline,
		StatusUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// defaultStatusTokens maps collapsed upstream tokens (lower-cased, with
// spaces, hyphens and underscores removed) to canonical statuses. The
// vocabulary covers both the UC platform and the team-chat platform.
var defaultStatusTokens = map[string]Status{
	"available": StatusAvailable,
	"online":    StatusAvailable,
	"active":    StatusAvailable,

	"busy": StatusBusy,

	"onphone":    StatusOnACall,
	"oncall":     StatusOnACall,
	"incall":     StatusOnACall,
	"inacall":    StatusOnACall,
	"onthephone": StatusOnACall,

	"inmeeting":         StatusInMeeting,
	"inameeting":        StatusInMeeting,
	"meeting":           StatusInMeeting,
	"inaconferencecall": StatusInMeeting,

	"dnd":          StatusDoNotDisturb,
	"donotdisturb": StatusDoNotDisturb,
	"presenting":   StatusDoNotDisturb,
	"focusing":     StatusDoNotDisturb,

	"away":        StatusAway,
	"idle":        StatusAway,
	"brb":         StatusAway,
	"berightback": StatusAway,

	"break":   StatusOnBreak,
	"onbreak": StatusOnBreak,
	"lunch":   StatusOnBreak,

	"offline":   StatusOffline,
	"invisible": StatusOffline,
	"offwork":   StatusOffline,

	"unknown": StatusUnknown,
}

var tokenCollapser = strings.NewReplacer(" ", "", "-", "", "_", "")

// Normalizer translates heterogeneous upstream status vocabularies into
// canonical statuses. The zero-config normalizer uses the built-in token
// table; overrides extend or replace individual entries.
type Normalizer struct {
	tokens map[string]Status
}

// NewNormalizer builds a normalizer. Override keys are collapsed with the
// same rules as lookups, so "On-Phone" and "onphone" configure one entry.
func NewNormalizer(overrides map[string]Status) *Normalizer {
	tokens := make(map[string]Status, len(defaultStatusTokens)+len(overrides))
	for k, v := range defaultStatusTokens {
		tokens[k] = v
	}
	for k, v := range overrides {
		tokens[collapse(k)] = v
	}
	return &Normalizer{tokens: tokens}
}

// Normalize maps a raw upstream status string to a canonical status. It is
// total: empty input maps to Offline, and an unrecognized token is echoed
// back capitalized rather than failing. Used identically for polled and
// webhook-delivered values.
func (n *Normalizer) Normalize(raw string) Status {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StatusOffline
	}

	if status, ok := n.tokens[collapse(trimmed)]; ok {
		return status
	}

	return Status(capitalize(trimmed))
}

// NormalizeStatus applies the built-in token table without overrides
func NormalizeStatus(raw string) Status {
	return defaultNormalizer.Normalize(raw)
}

var defaultNormalizer = NewNormalizer(nil)

// DefaultNormalizer returns the shared normalizer with no overrides
func DefaultNormalizer() *Normalizer {
	return defaultNormalizer
}

func collapse(s string) string {
	return tokenCollapser.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
