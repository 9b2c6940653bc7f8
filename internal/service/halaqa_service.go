package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/halaqa-api/internal/models"
	"github.com/noah-isme/halaqa-api/pkg/cache"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
)

type halaqaRepository interface {
	FindByID(ctx context.Context, id string) (*models.Halaqa, error)
	List(ctx context.Context, filter models.HalaqaFilter) ([]models.Halaqa, int, error)
}

// HalaqaService reads the halaqa directory, caching single lookups because
// every workflow decision resolves the target halaqa.
type HalaqaService struct {
	repo   halaqaRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewHalaqaService constructs the directory reader. A nil cache disables caching.
func NewHalaqaService(repo halaqaRepository, cacheSvc *CacheService, ttl time.Duration, logger *zap.Logger) *HalaqaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HalaqaService{repo: repo, cache: cacheSvc, ttl: ttl, logger: logger}
}

// FindByID returns the halaqa or the repository error untouched (sql.ErrNoRows
// when missing), so it can stand in for the repository in other services.
func (s *HalaqaService) FindByID(ctx context.Context, id string) (*models.Halaqa, error) {
	key := halaqaCacheKey(id)
	var cached models.Halaqa
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	halaqa, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, halaqa, s.ttl); err != nil {
		s.logger.Debug("halaqa cache write skipped", zap.String("halaqa_id", id), zap.Error(err))
	}
	return halaqa, nil
}

// Get returns a halaqa mapped onto API errors.
func (s *HalaqaService) Get(ctx context.Context, id string) (*models.Halaqa, error) {
	halaqa, err := s.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "halaqa not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load halaqa")
	}
	return halaqa, nil
}

// List returns the directory page for the filter.
func (s *HalaqaService) List(ctx context.Context, filter models.HalaqaFilter) ([]models.Halaqa, *models.Pagination, error) {
	halaqas, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list halaqas")
	}
	return halaqas, paginate(filter.Page, filter.PageSize, total), nil
}

// Invalidate drops a cached halaqa.
func (s *HalaqaService) Invalidate(ctx context.Context, id string) error {
	return s.cache.Invalidate(ctx, halaqaCacheKey(id))
}

func halaqaCacheKey(id string) string {
	return cache.Key("halaqa", id)
}

func paginate(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
