package service

import (
	"context"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/storage"
)

// RunService exposes ingestion run history to the HTTP layer.
// This decouples handlers from data access.
type RunService interface {
	Latest(ctx context.Context) (*models.RunReport, error)
}

type runService struct {
	repo storage.BarRepository
}

func NewRunService(repo storage.BarRepository) RunService {
	return &runService{repo: repo}
}

func (s *runService) Latest(ctx context.Context) (*models.RunReport, error) {
	return s.repo.LatestRun(ctx)
}
