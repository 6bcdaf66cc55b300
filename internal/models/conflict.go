package models

// ConflictType classifies a resolution decision.
type ConflictType string

const (
	ConflictDeletion      ConflictType = "deletion"
	ConflictBothDeleted   ConflictType = "both_deleted"
	ConflictDuplicate     ConflictType = "duplicate"
	ConflictSimultaneous  ConflictType = "simultaneous_edit"
	ConflictLastWriteWins ConflictType = "last_write_wins"
)

// Winner identifies which side a resolution kept.
type Winner string

const (
	WinnerLocal Winner = "local"
	WinnerCloud Winner = "cloud"
)

// ConflictLogEntry is one audited resolution decision.
type ConflictLogEntry struct {
	ID         string       `json:"id"`
	StorageKey string       `json:"storageKey"`
	RecordID   string       `json:"recordId"`
	Type       ConflictType `json:"type"`
	Winner     Winner       `json:"winner"`
	Reason     string       `json:"reason"`
	Local      Record       `json:"local"`
	Remote     Record       `json:"remote"`
	ResolvedAt int64        `json:"resolvedAt"`
}

// UnresolvableConflict is a near-simultaneous edit flagged for a human choice.
// Applied is the record that the last-write-wins fallback produced.
type UnresolvableConflict struct {
	ID              string `json:"id"`
	StorageKey      string `json:"storageKey"`
	RecordID        string `json:"recordId"`
	Local           Record `json:"local"`
	Remote          Record `json:"remote"`
	Applied         Winner `json:"applied"`
	LocalTimestamp  int64  `json:"localTimestamp"`
	RemoteTimestamp int64  `json:"remoteTimestamp"`
	DetectedAt      int64  `json:"detectedAt"`
}

// ConflictStatistics summarises the audit log.
type ConflictStatistics struct {
	Total      int                  `json:"total"`
	ByType     map[ConflictType]int `json:"byType"`
	ByWinner   map[Winner]int       `json:"byWinner"`
	Unresolved int                  `json:"unresolved"`
}
