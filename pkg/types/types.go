package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies the kind of deferred mutation a QueuedAction carries.
type ActionType string

const (
	ActionStatusUpdate ActionType = "status_update"
	ActionPODSubmit    ActionType = "pod_submit"
)

// QueuedAction is the unit of durable work in the offline queue. It records
// one deferred mutation (status change or POD submission) awaiting delivery
// to the backend. The payload stays opaque at rest so future action kinds can
// be added without breaking persisted queues.
type QueuedAction struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	JobID     string          `json:"job_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`
	LastError string          `json:"last_error,omitempty"`
}

// StatusUpdate is the typed payload for ActionStatusUpdate.
type StatusUpdate struct {
	Status JobStatus `json:"status"`
}

// PODSubmit is the typed payload for ActionPODSubmit.
type PODSubmit struct {
	RecipientName string   `json:"recipient_name"`
	PhotoURLs     []string `json:"photo_urls,omitempty"`
	SignatureURL  string   `json:"signature_url,omitempty"`
}

// EncodePayload marshals a typed payload into the opaque form stored on a
// QueuedAction.
func EncodePayload(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodeStatusUpdate decodes the payload of a status_update action.
func DecodeStatusUpdate(a QueuedAction) (StatusUpdate, error) {
	var p StatusUpdate
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode status_update payload: %w", err)
	}
	return p, nil
}

// DecodePODSubmit decodes the payload of a pod_submit action.
func DecodePODSubmit(a QueuedAction) (PODSubmit, error) {
	var p PODSubmit
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode pod_submit payload: %w", err)
	}
	return p, nil
}

// JobStatus represents the delivery lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusPickedUp  JobStatus = "picked_up"
	JobStatusInTransit JobStatus = "in_transit"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusFailed    JobStatus = "failed"
)

// ValidJobStatus reports whether s is a known job status value.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusAssigned, JobStatusPickedUp,
		JobStatusInTransit, JobStatusDelivered, JobStatusFailed:
		return true
	}
	return false
}

// Job mirrors the backend's job resource as seen by the driver client.
type Job struct {
	ID             string    `json:"id"`
	TrackingID     string    `json:"tracking_id"`
	CustomerID     string    `json:"customer_id"`
	DriverID       string    `json:"driver_id,omitempty"`
	PickupAddress  string    `json:"pickup_address"`
	DropoffAddress string    `json:"dropoff_address"`
	Status         JobStatus `json:"status"`
	Description    string    `json:"description,omitempty"`
	SpecialNotes   string    `json:"special_instructions,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// POD is the backend's proof-of-delivery read model.
type POD struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	SignedBy     string    `json:"signed_by"`
	SignatureURL string    `json:"signature_url,omitempty"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	SignedAt     time.Time `json:"signed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session holds the bearer credentials issued at login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
