package enums

import "fmt"

// MagazineStatus describes where a magazine sits in the ingestion lifecycle.
type MagazineStatus string

const (
	MagazineStatusDraft      MagazineStatus = "draft"
	MagazineStatusProcessing MagazineStatus = "processing"
	MagazineStatusReady      MagazineStatus = "ready"
	MagazineStatusFailed     MagazineStatus = "failed"
)

var validMagazineStatuses = []MagazineStatus{
	MagazineStatusDraft,
	MagazineStatusProcessing,
	MagazineStatusReady,
	MagazineStatusFailed,
}

// String returns the literal string for the status.
func (m MagazineStatus) String() string {
	return string(m)
}

// IsValid reports whether the status is known.
func (m MagazineStatus) IsValid() bool {
	for _, candidate := range validMagazineStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a run has finished for this status.
func (m MagazineStatus) IsTerminal() bool {
	return m == MagazineStatusReady || m == MagazineStatusFailed
}

// CanTransitionTo enforces the lifecycle: any state may enter processing,
// processing ends in ready or failed, and nothing returns to draft.
func (m MagazineStatus) CanTransitionTo(next MagazineStatus) bool {
	switch next {
	case MagazineStatusProcessing:
		return m.IsValid()
	case MagazineStatusReady, MagazineStatusFailed:
		return m == MagazineStatusProcessing
	default:
		return false
	}
}

// ParseMagazineStatus converts raw input into a MagazineStatus.
func ParseMagazineStatus(value string) (MagazineStatus, error) {
	for _, candidate := range validMagazineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid magazine status %q", value)
}
