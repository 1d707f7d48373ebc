package constants

import "time"

// DefaultTransactionTimeout bounds a transaction when the caller context carries no deadline.
const DefaultTransactionTimeout = 30 * time.Second

// SavepointPrefix prefixes every savepoint name issued for nested scopes.
const SavepointPrefix = "txplan_sp_"

// Outcome labels used by metrics and logs.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeJoined     = "joined"
	OutcomeAborted    = "aborted"

	OutcomeSavepointReleased   = "savepoint_released"
	OutcomeSavepointRolledBack = "savepoint_rolled_back"
)
