package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100

	// MaxPage bounds the offset a listing can ask the database to skip.
	MaxPage = 10000
)

type ListParams struct {
	Status   *domain.RequestStatus
	UserID   *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type QuoteRequestRepository interface {
	Create(ctx context.Context, r *domain.ExternalQuoteRequest) error
	Complete(ctx context.Context, requestID string, outcome domain.QuoteRequestOutcome) (*domain.ExternalQuoteRequest, error)
	GetByRequestID(ctx context.Context, requestID string) (*domain.ExternalQuoteRequest, error)
	List(ctx context.Context, params ListParams) ([]domain.ExternalQuoteRequest, int64, error)
	ListStuck(ctx context.Context, updatedBefore time.Time, params ListParams) ([]domain.ExternalQuoteRequest, int64, error)
}

type GormQuoteRequestRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormQuoteRequestRepo(db *gorm.DB) *GormQuoteRequestRepo {
	return &GormQuoteRequestRepo{db: db, now: time.Now}
}

func (r *GormQuoteRequestRepo) Create(ctx context.Context, req *domain.ExternalQuoteRequest) error {
	model := quoteRequestModelFromDomain(req)
	if model == nil {
		return domain.ErrValidation
	}

	err := r.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	if err != nil {
		return err
	}

	*req = *quoteRequestModelToDomain(model)
	return nil
}

// Complete applies the terminal write to a pending row. Rows that already left
// pending are never touched again and yield ErrConflict.
func (r *GormQuoteRequestRepo) Complete(ctx context.Context, requestID string, outcome domain.QuoteRequestOutcome) (*domain.ExternalQuoteRequest, error) {
	if !outcome.Status.IsTerminal() {
		return nil, domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Model(&QuoteRequestModel{}).
		Where("request_id = ? AND status = ?", requestID, domain.RequestStatusPending).
		Select("status", "response_data", "providers_responded", "error_message", "updated_at").
		Updates(&QuoteRequestModel{
			Status:             outcome.Status,
			ResponseData:       outcome.ResponseData,
			ProvidersResponded: outcome.ProvidersResponded,
			ErrorMessage:       outcome.ErrorMessage,
			UpdatedAt:          r.now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByRequestID(ctx, requestID); err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict
	}

	return r.GetByRequestID(ctx, requestID)
}

func (r *GormQuoteRequestRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.ExternalQuoteRequest, error) {
	var model QuoteRequestModel
	err := r.db.WithContext(ctx).First(&model, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return quoteRequestModelToDomain(&model), nil
}

func (r *GormQuoteRequestRepo) List(ctx context.Context, params ListParams) ([]domain.ExternalQuoteRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&QuoteRequestModel{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	return r.page(applyListFilters(query, params), params, "created_at DESC")
}

// ListStuck returns pending rows not touched since updatedBefore, oldest
// first. Status in params is ignored; the other filters and paging apply.
func (r *GormQuoteRequestRepo) ListStuck(ctx context.Context, updatedBefore time.Time, params ListParams) ([]domain.ExternalQuoteRequest, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&QuoteRequestModel{}).
		Where("status = ? AND updated_at < ?", domain.RequestStatusPending, updatedBefore)
	return r.page(applyListFilters(query, params), params, "updated_at ASC")
}

func applyListFilters(query *gorm.DB, params ListParams) *gorm.DB {
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}
	return query
}

func (r *GormQuoteRequestRepo) page(query *gorm.DB, params ListParams, order string) ([]domain.ExternalQuoteRequest, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := min(max(params.Page, 1), MaxPage)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	var models []QuoteRequestModel
	err := query.
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return quoteRequestsToDomain(models), total, nil
}

func quoteRequestsToDomain(models []QuoteRequestModel) []domain.ExternalQuoteRequest {
	requests := make([]domain.ExternalQuoteRequest, 0, len(models))
	for i := range models {
		requests = append(requests, *quoteRequestModelToDomain(&models[i]))
	}
	return requests
}
