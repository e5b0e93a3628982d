package domain

import "time"

// Fetch is the raw outcome of one request to the content provider.
type Fetch struct {
	Endpoint     string
	StatusCode   int
	Body         []byte
	ResponseTime time.Duration
}

// Content is a provider response flattened into item rows.
type Content struct {
	Items      []BatchItem
	Version    any
	VideoCount int
}

// ReconcileStats reports how a stored item set was brought in line with a sync.
type ReconcileStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// SyncResult describes a single batch sync.
type SyncResult struct {
	BatchID        string
	ItemsProcessed int
	ResponseTime   time.Duration
	Version        any
	Reconcile      ReconcileStats
	SyncedAt       time.Time
}

// SyncStats holds statistics about a full re-sync pass.
type SyncStats struct {
	Batches   int
	Succeeded int
	Failed    int
	Items     int
	Duration  time.Duration
}
