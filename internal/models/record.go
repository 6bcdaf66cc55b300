// Package models provides data model definitions for the MedAdhere sync core.
package models

import (
	"fmt"
	"time"
)

// Kind identifies one of the three synced record collections.
type Kind string

const (
	KindMedication Kind = "medications"
	KindADRReport  Kind = "adrReports"
	KindAdherence  Kind = "adherenceHistory"
)

// AllKinds lists the record kinds in sync order.
var AllKinds = []Kind{KindMedication, KindADRReport, KindAdherence}

// ParseKind validates a collection name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMedication, KindADRReport, KindAdherence:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// StorageKey returns the local key-value key holding this collection.
func (k Kind) StorageKey() string {
	return string(k)
}

// Record is the shared shape of Medication, ADRReport and AdherenceEntry.
// Timestamps are Unix milliseconds; zero means unset.
type Record struct {
	ID      string `json:"id"`
	CloudID string `json:"cloudId,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
	UpdatedAt int64 `json:"updatedAt,omitempty"`
	Timestamp int64 `json:"timestamp,omitempty"`
	SyncedAt  int64 `json:"syncedAt,omitempty"`
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`

	// Medication
	Name      string `json:"name,omitempty"`
	Dosage    string `json:"dosage,omitempty"`
	Time      string `json:"time,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Taken     bool   `json:"taken"`
	Notes     string `json:"notes,omitempty"`

	// ADR report / adherence entry
	MedicationName string   `json:"medicationName,omitempty"`
	MedicationID   string   `json:"medicationId,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	OnsetDate      string   `json:"onsetDate,omitempty"`
	Outcome        string   `json:"outcome,omitempty"`
	Date           string   `json:"date,omitempty"`
}

// OrderingTime returns the conflict-resolution ordering key:
// updatedAt, falling back to createdAt, then timestamp.
func (r *Record) OrderingTime() int64 {
	switch {
	case r.UpdatedAt != 0:
		return r.UpdatedAt
	case r.CreatedAt != 0:
		return r.CreatedAt
	default:
		return r.Timestamp
	}
}

// HasCloudID reports whether the record has been pushed at least once.
func (r *Record) HasCloudID() bool {
	return r.CloudID != ""
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	if r.Symptoms != nil {
		r.Symptoms = append([]string(nil), r.Symptoms...)
	}
	return r
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (r *Record) UpdatedAtTime() time.Time {
	return time.UnixMilli(r.UpdatedAt)
}

// SyncedAtTime returns SyncedAt as time.Time.
func (r *Record) SyncedAtTime() time.Time {
	return time.UnixMilli(r.SyncedAt)
}

// Validate checks the minimum fields a record of the given kind needs.
func (r *Record) Validate(kind Kind) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	switch kind {
	case KindMedication:
		if r.Name == "" && !r.Deleted {
			return fmt.Errorf("medication name is required")
		}
	case KindADRReport:
		if r.MedicationName == "" && len(r.Symptoms) == 0 && !r.Deleted {
			return fmt.Errorf("adr report needs a medication name or symptoms")
		}
	case KindAdherence:
		if r.MedicationID == "" && r.MedicationName == "" && !r.Deleted {
			return fmt.Errorf("adherence entry needs a medication reference")
		}
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
	return nil
}

// NowMillis converts t to Unix milliseconds.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
