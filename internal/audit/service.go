package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	Action     string
	TargetType string
	Page       int
	PageSize   int
}

// TimelineQuery is the repository-level form of the filters.
type TimelineQuery struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	Action     string
	TargetType string
	Offset     int
	Limit      int
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Record
	Paging PagingInfo
}

// Repository provides the read path over audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, q TimelineQuery) ([]Record, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit records with paging. Page sizes are clamped to
// keep the admin console responsive.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, TimelineQuery{
		From:       filters.From,
		To:         filters.To,
		ActorID:    filters.ActorID,
		Action:     filters.Action,
		TargetType: filters.TargetType,
		Offset:     offset,
		Limit:      pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}

	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
