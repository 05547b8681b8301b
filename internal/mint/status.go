package mint

// Status is the mint attempt lifecycle, owned exclusively by the
// Orchestrator. Transitions are one-directional except Failed→Idle and
// Confirmed→Idle, both taken on the next user-initiated mint.
type Status uint8

const (
	StatusIdle Status = iota
	StatusPreparingMetadata
	StatusEstimatingGas
	StatusAwaitingSponsorDecision
	StatusAwaitingWalletConfirmation
	StatusSubmitted
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusPreparingMetadata:
		return "PREPARING_METADATA"
	case StatusEstimatingGas:
		return "ESTIMATING_GAS"
	case StatusAwaitingSponsorDecision:
		return "AWAITING_SPONSOR_DECISION"
	case StatusAwaitingWalletConfirmation:
		return "AWAITING_WALLET_CONFIRMATION"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether a new mint attempt may start from this status.
func (s Status) Terminal() bool {
	return s == StatusIdle || s == StatusConfirmed || s == StatusFailed
}
