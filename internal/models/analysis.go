package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result statuses recorded next to the raw response text.
const (
	StatusCompleted       = "completed"
	StatusNoResponse      = "no_response"
	StatusInferenceFailed = "inference_failed"
)

// AnalysisRequest is the durable record of an accepted upload
type AnalysisRequest struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID      `json:"user_id" gorm:"type:uuid;index;not null"`
	SessionID     uuid.UUID      `json:"session_id" gorm:"type:uuid;index;not null"`
	CharacterName string         `json:"character_name" gorm:"not null"`
	PromptSent    datatypes.JSON `json:"prompt_sent"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName pins the table name.
func (AnalysisRequest) TableName() string {
	return "analysis_requests"
}

// BeforeCreate assigns the id when the caller left it empty.
func (r *AnalysisRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AnalysisResult is one model response for an AnalysisRequest. Rows are never updated.
type AnalysisResult struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID     uuid.UUID `json:"request_id" gorm:"type:uuid;index;not null"`
	UserID        uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	LLMResponse   string    `json:"llm_response" gorm:"column:llm_response;type:text"`
	Status        string    `json:"status" gorm:"index;not null;default:completed"`
	FragmentCount int       `json:"fragment_count"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName pins the table name.
func (AnalysisResult) TableName() string {
	return "analysis_results"
}

// BeforeCreate assigns the id when the caller left it empty.
func (r *AnalysisResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AnalysisView is returned by GET /api/analysis/:request_id
type AnalysisView struct {
	Request AnalysisRequest  `json:"request"`
	Results []AnalysisResult `json:"results"`
}
