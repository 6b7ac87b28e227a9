package reader

import "time"

// BackupSummary is the CLI view of one local backup entry.
type BackupSummary struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	RetryCount int       `json:"retryCount"`
	MaxRetries int       `json:"maxRetries"`
	CreatedAt  time.Time `json:"createdAt"`
	LastError  string    `json:"lastError,omitempty"`
}

// RecoverySummary is the CLI view of one recovery registry entry.
type RecoverySummary struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	ObjectName   string    `json:"objectName"`
	RetryCount   int       `json:"retryCount"`
	MaxRetries   int       `json:"maxRetries"`
	CreatedAt    time.Time `json:"createdAt"`
	HasOriginals bool      `json:"hasOriginals"`
	LastError    string    `json:"lastError,omitempty"`
}

// QueueDepths reports the live length of both location queues.
type QueueDepths struct {
	GPS    int64 `json:"gps"`
	Mobile int64 `json:"mobile"`
}

// PipelineStats aggregates durable-store and queue state for the stats view.
type PipelineStats struct {
	Queues QueueDepths `json:"queues"`

	BackupsPending   int `json:"backupsPending"`
	BackupsCompleted int `json:"backupsCompleted"`
	BackupsFailed    int `json:"backupsFailed"`

	RecoveryPending   int `json:"recoveryPending"`
	RecoveryCompleted int `json:"recoveryCompleted"`
	RecoveryFailed    int `json:"recoveryFailed"`
}
