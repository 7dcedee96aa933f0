package types

// Provenance records which update path last wrote a presence record
type Provenance string

const (
	// ProvenanceWebhook marks a record written by the webhook push path
	ProvenanceWebhook Provenance = "webhook_realtime"
	// ProvenancePolled marks a record written by the periodic poll
	ProvenancePolled Provenance = "polled_fresh"
	// ProvenanceStartup marks a record written by the startup population
	ProvenanceStartup Provenance = "startup_init"
	// ProvenanceFallback marks a record synthesized when no source answered
	ProvenanceFallback Provenance = "fallback_generic"
)

// IsValid checks if the provenance is valid
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceWebhook, ProvenancePolled, ProvenanceStartup, ProvenanceFallback:
		return true
	default:
		return false
	}
}

// String returns the string representation of the provenance
func (p Provenance) String() string {
	return string(p)
}
