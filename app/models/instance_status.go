package models

// InstanceStatus is the chargeable state of a bot instance. New values arrive
// over time via migration, so parsing falls back to StatusUnknown instead of
// failing on strings this build does not know yet.
type InstanceStatus string

const (
	StatusProvisioning     InstanceStatus = "provisioning"
	StatusActive           InstanceStatus = "active"
	StatusPaused           InstanceStatus = "paused"
	StatusInactive         InstanceStatus = "inactive"
	StatusUpdating         InstanceStatus = "updating"
	StatusDeleting         InstanceStatus = "deleting"
	StatusError            InstanceStatus = "error"
	StatusNotEnoughBalance InstanceStatus = "not_enough_balance"
	StatusUnknown          InstanceStatus = "unknown"
)

var knownStatuses = map[InstanceStatus]struct{}{
	StatusProvisioning:     {},
	StatusActive:           {},
	StatusPaused:           {},
	StatusInactive:         {},
	StatusUpdating:         {},
	StatusDeleting:         {},
	StatusError:            {},
	StatusNotEnoughBalance: {},
	StatusUnknown:          {},
}

// ParseInstanceStatus maps a raw status string to a known status value.
// Unrecognized values become StatusUnknown.
func ParseInstanceStatus(raw string) InstanceStatus {
	s := InstanceStatus(raw)
	if _, ok := knownStatuses[s]; ok {
		return s
	}
	return StatusUnknown
}

func (s InstanceStatus) String() string {
	return string(s)
}
