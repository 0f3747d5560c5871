package models

import (
	"encoding/json"
	"time"
)

const (
	SyncSessionStatusPending   = "pending"
	SyncSessionStatusCommitted = "committed"
	SyncSessionStatusCancelled = "cancelled"
	SyncSessionStatusExpired   = "expired"
)

// SyncSessionSchemaVersion tags the preview/decision JSON layout so a reader
// can reject rows written by an incompatible deploy instead of silently
// misparsing them.
const SyncSessionSchemaVersion = 1

type SyncSession struct {
	ID            string     `gorm:"primary_key;size:36" json:"id"`
	Status        string     `gorm:"index;size:20;not null" json:"status"`
	SchemaVersion int        `gorm:"not null" json:"schema_version"`
	PreviewJSON   []byte     `gorm:"type:json" json:"preview"`
	DecisionsJSON []byte     `gorm:"type:json" json:"decisions"`
	ResultJSON    []byte     `gorm:"type:json" json:"result"`
	Version       int        `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt     time.Time  `gorm:"index;not null" json:"expires_at"`
	FinalizedAt   *time.Time `json:"finalized_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether status can never change again.
func (s *SyncSession) IsTerminal() bool {
	return s.Status == SyncSessionStatusCommitted ||
		s.Status == SyncSessionStatusCancelled ||
		s.Status == SyncSessionStatusExpired
}

func (s *SyncSession) Decisions() map[string]string {
	return DecodeDecisions(s.DecisionsJSON)
}

func DecodeDecisions(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var decisions map[string]string
	if err := json.Unmarshal(raw, &decisions); err != nil {
		return map[string]string{}
	}
	return decisions
}

func EncodeDecisions(decisions map[string]string) []byte {
	b, _ := json.Marshal(decisions)
	return b
}
