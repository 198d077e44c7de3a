package protocol

import "time"

// Directory and file constants used throughout hive.
const (
	// HiveDir is the project-level state directory (e.g., ./.hive).
	HiveDir = ".hive"

	// SessionDirName is the session subdirectory holding the durable
	// claim, conflict, and session-record files.
	SessionDirName = "session"

	// ClaimsFile is the claim store's backing file inside the session dir.
	ClaimsFile = "claims.json"

	// ConflictsFile is the conflict queue's backing file inside the
	// session dir.
	ConflictsFile = "conflicts.json"

	// SessionsFile holds the persisted agent session records.
	SessionsFile = "sessions.json"

	// RuntimeDBFile is the SQLite runtime database inside the hive dir.
	RuntimeDBFile = "runtime.db"

	// BacklogDirName is the directory watched for backlog seed files.
	BacklogDirName = "backlog"

	// ControlSocketFile is the Unix socket inside the hive dir on which a
	// running serve process accepts operator directives.
	ControlSocketFile = "control.sock"
)

// StaleClaimAge is the lease age beyond which a claim is classified stale
// and becomes a candidate for forced recovery.
const StaleClaimAge = 8 * time.Hour

// StuckHeartbeatAge is the heartbeat age beyond which an agent is flagged
// stuck, regardless of its reported state.
const StuckHeartbeatAge = 10 * time.Minute

// EmergencyLogCap bounds the emergency audit log; every write trims the
// log to the most recent EmergencyLogCap entries.
const EmergencyLogCap = 100

// Queue-depth water marks for ideation scheduling hints.
const (
	QueueLowWater  = 3  // below this: prioritize ideation
	QueueHighWater = 20 // above this: pause ideation
)

// EmergencyUserID is the placeholder operator identity recorded in the
// audit log until real operator identities exist.
const EmergencyUserID = "system"
