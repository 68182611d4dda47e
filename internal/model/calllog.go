package model

import "time"

// CallLogEntry is one row of the provider call log. Append-only; the
// resolution logic never reads it back, it exists for cost accounting.
type CallLogEntry struct {
	ID        int64     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Status    *string   `json:"status,omitempty"`
	URL       string    `json:"url"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CallStats aggregates provider call volume over the standard windows.
type CallStats struct {
	Today     int `json:"today"`
	LastWeek  int `json:"last_week"`
	LastMonth int `json:"last_month"`
}

// ParcelJobStatus is the lifecycle state of a parcel lookup job.
type ParcelJobStatus string

const (
	ParcelJobQueued  ParcelJobStatus = "queued"
	ParcelJobRunning ParcelJobStatus = "running"
	ParcelJobDone    ParcelJobStatus = "done"
	ParcelJobFailed  ParcelJobStatus = "failed"
)

// ParcelJob is a best-effort background lookup linking a canonical address to
// an external parcel dataset. At most one queued/running job exists per
// (source table, source id).
type ParcelJob struct {
	ID          int64           `json:"id"`
	SourceTable string          `json:"source_table"`
	SourceID    int64           `json:"source_id"`
	AddressHint string          `json:"address_hint"`
	Status      ParcelJobStatus `json:"status"`
	Priority    int             `json:"priority"`
	ParcelID    *int64          `json:"parcel_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
