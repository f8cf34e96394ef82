package repository

import (
	"context"
	"errors"
	"fmt"

	"chat-risk-analysis/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrMissingID is returned when the store did not produce an id for an inserted row.
var ErrMissingID = errors.New("store returned no id")

// RecordStore persists analysis requests and results.
type RecordStore interface {
	InsertRequest(ctx context.Context, req *models.AnalysisRequest) (uuid.UUID, error)
	InsertResult(ctx context.Context, res *models.AnalysisResult) (uuid.UUID, error)
	GetRequestUserID(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error)
}

// AnalysisReader serves the read side of the lookup endpoint.
type AnalysisReader interface {
	GetRequest(ctx context.Context, requestID uuid.UUID) (*models.AnalysisRequest, error)
	ListResultsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.AnalysisResult, error)
}

type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

// Migrate creates or updates the analysis tables.
func (s *GormRecordStore) Migrate() error {
	return s.db.AutoMigrate(&models.AnalysisRequest{}, &models.AnalysisResult{})
}

func (s *GormRecordStore) InsertRequest(ctx context.Context, req *models.AnalysisRequest) (uuid.UUID, error) {
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert analysis request: %w", err)
	}
	if req.ID == uuid.Nil {
		return uuid.Nil, ErrMissingID
	}
	return req.ID, nil
}

func (s *GormRecordStore) InsertResult(ctx context.Context, res *models.AnalysisResult) (uuid.UUID, error) {
	if err := s.db.WithContext(ctx).Create(res).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert analysis result: %w", err)
	}
	if res.ID == uuid.Nil {
		return uuid.Nil, ErrMissingID
	}
	return res.ID, nil
}

func (s *GormRecordStore) GetRequestUserID(ctx context.Context, requestID uuid.UUID) (uuid.UUID, error) {
	var req models.AnalysisRequest
	err := s.db.WithContext(ctx).Select("user_id").Where("id = ?", requestID).Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup request user: %w", err)
	}
	return req.UserID, nil
}

func (s *GormRecordStore) GetRequest(ctx context.Context, requestID uuid.UUID) (*models.AnalysisRequest, error) {
	var req models.AnalysisRequest
	err := s.db.WithContext(ctx).Where("id = ?", requestID).Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis request: %w", err)
	}
	return &req, nil
}

func (s *GormRecordStore) ListResultsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("list analysis results: %w", err)
	}
	return results, nil
}
