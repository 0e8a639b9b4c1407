package audit

// Exit statuses. 0 through MaxDeltaStatus report the modified-entry count
// exactly; larger counts collapse to MaxDeltaStatus so the range above it
// stays reserved for abnormal conditions. The true count survives only in
// the printed totals.
const (
	// MaxDeltaStatus is the largest exit status used for delta counts.
	MaxDeltaStatus = 125

	// ExitUsage reports an invalid option.
	ExitUsage = 252

	// ExitMissingParameter reports a missing required parameter.
	ExitMissingParameter = 253

	// ExitArchiveFault reports an unreadable, missing, or corrupt archive.
	ExitArchiveFault = 254

	// ExitUnknown reports an unclassified failure.
	ExitUnknown = 255
)

// ExitStatus maps a modified-entry count onto the process exit status:
// the exact count up to MaxDeltaStatus, capped beyond it.
func ExitStatus(modified int64) int {
	if modified > MaxDeltaStatus {
		return MaxDeltaStatus
	}
	return int(modified)
}
