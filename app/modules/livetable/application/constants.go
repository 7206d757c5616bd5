package livetableservice

// Admin actions the tick may attempt. Each is throttled on its own.
type adminAction string

const (
	actionOpenRound adminAction = "open_round"
	actionLock      adminAction = "lock"
	actionReveal    adminAction = "reveal"
	actionFinalize  adminAction = "finalize"
)

var adminActions = []adminAction{actionOpenRound, actionLock, actionReveal, actionFinalize}

// Reasons a participant leaves the settlement queue without settling.
const (
	dropNoSigner    = "no_signer"
	dropMaxAttempts = "max_attempts"
)

var (
	yesNoTargets   = []uint8{4, 5, 6, 8, 9, 10}
	hardwayTargets = []uint8{4, 6, 8, 10}
)
