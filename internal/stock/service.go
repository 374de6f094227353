package stock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockroom/internal/platform/httpx"
	"github.com/odyssey-erp/stockroom/internal/shared"
)

var sortableFields = map[string]struct{}{
	"product_code": {}, "product_name": {}, "category": {}, "quantity": {},
	"price": {}, "location": {}, "updated_at": {},
}

// WarmupRequester schedules a statistics recomputation in the background.
type WarmupRequester interface {
	EnqueueStatisticsWarmup(ctx context.Context, reason string) error
}

// Service holds the stock business rules.
type Service struct {
	repo     Repository
	cache    *StatsCache
	validate *validator.Validate
	logger   *slog.Logger
	warmup   WarmupRequester
}

// NewService wires a Service. cache may be nil.
func NewService(repo Repository, cache *StatsCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Service{repo: repo, cache: cache, validate: v, logger: logger}
}

// WithWarmup makes bulk imports request a statistics warmup.
func (s *Service) WithWarmup(w WarmupRequester) *Service {
	s.warmup = w
	return s
}

// NormalizeFilters applies paging defaults and falls back to updated_at for
// unknown sort fields.
func NormalizeFilters(f ListFilters) ListFilters {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	if _, ok := sortableFields[f.SortBy]; !ok {
		f.SortBy = "updated_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	return f
}

// List returns one page plus collection-wide statistics.
func (s *Service) List(ctx context.Context, filters ListFilters) (ListResult, error) {
	filters = NormalizeFilters(filters)

	var (
		stocks []Stock
		total  int
		stats  Statistics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stocks, total, err = s.repo.List(gctx, filters)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.Statistics(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return ListResult{}, err
	}

	if stocks == nil {
		stocks = []Stock{}
	}
	p := shared.NewPagination(filters.Page, filters.Limit, total)
	return ListResult{
		Stocks:     stocks,
		Total:      total,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		Statistics: stats,
	}, nil
}

// Statistics returns cached collection statistics.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	return s.cache.Fetch(ctx, s.repo.Statistics)
}

// WarmStatistics recomputes statistics and stores them in the cache.
func (s *Service) WarmStatistics(ctx context.Context) (Statistics, error) {
	stats, err := s.cache.Warm(ctx, s.repo.Statistics)
	if err != nil {
		return stats, fmt.Errorf("stock: warm statistics: %w", err)
	}
	return stats, nil
}

// Categories lists distinct categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

// Get fetches record id.
func (s *Service) Get(ctx context.Context, id int64) (Stock, error) {
	if id <= 0 {
		return Stock{}, fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new record.
func (s *Service) Create(ctx context.Context, in Input) (Stock, error) {
	in = in.normalize()
	if err := s.Validate(in); err != nil {
		return Stock{}, err
	}
	created, err := s.repo.Create(ctx, in)
	if err != nil {
		return Stock{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Update validates and replaces record id.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Stock, error) {
	if id <= 0 {
		return Stock{}, fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	in = in.normalize()
	if err := s.Validate(in); err != nil {
		return Stock{}, err
	}
	updated, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Stock{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes record id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Export writes every record as an Excel workbook.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	stocks, err := s.repo.All(ctx)
	if err != nil {
		return err
	}
	return WriteWorkbook(w, stocks)
}

// Import upserts every row of an uploaded workbook. One invalid row rejects
// the whole file.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ReadWorkbook(r)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, &ValidationError{Fields: map[string]string{"file": "contains no data rows"}}
	}
	inputs := make([]Input, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		in := row.Input.normalize()
		if err := s.Validate(in); err != nil {
			return 0, fmt.Errorf("row %d: %w", row.Row, err)
		}
		if prev, ok := seen[in.ProductCode]; ok {
			return 0, fmt.Errorf("row %d: product code %s repeats row %d: %w", row.Row, in.ProductCode, prev, httpx.ErrValidation)
		}
		seen[in.ProductCode] = row.Row
		inputs = append(inputs, in)
	}
	n, err := s.repo.Upsert(ctx, inputs)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	s.logger.Info("stock import applied", slog.Int("rows", n))
	if s.warmup != nil {
		if err := s.warmup.EnqueueStatisticsWarmup(ctx, "import"); err != nil {
			s.logger.Warn("request statistics warmup", slog.Any("error", err))
		}
	}
	return n, nil
}

// Validate checks in against the field rules.
func (s *Service) Validate(in Input) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "is required"
		case "gte":
			fields[fe.Field()] = "must be " + fe.Param() + " or greater"
		case "max":
			fields[fe.Field()] = "must be at most " + fe.Param() + " characters"
		default:
			fields[fe.Field()] = "is invalid"
		}
	}
	return &ValidationError{Fields: fields}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stats cache bump failed", slog.Any("error", err))
	}
}
