package audit

import (
	"context"
	"sort"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// SearchFilter narrows a cross-table history search. Zero values mean
// "no constraint"; EntityType empty searches all three tables.
type SearchFilter struct {
	EntityType domain.EntityType
	EntityID   string
	ChangeType domain.ChangeType
	ChangedBy  string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	Limit      int
}

func (f SearchFilter) normalized() SearchFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultSearchLimit
	}
	if f.Limit > maxSearchLimit {
		f.Limit = maxSearchLimit
	}
	return f
}

// SearchResult is one page of merged, filtered history entries, newest
// first, with the exact combined total across all searched tables.
type SearchResult struct {
	Entries []Entry `json:"entries"`
	Total   int64   `json:"total"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
}

// Search queries each selected history table with the same filters, merges
// the results, and slices out the requested page. Totals come from
// per-table counts, and each table is fetched up to offset+limit rows, so
// page boundaries are exact even when entries interleave across tables. The
// cost is over-fetching on deep pages.
func (s *Service) Search(ctx context.Context, filter SearchFilter) (SearchResult, error) {
	filter = filter.normalized()
	offset := (filter.Page - 1) * filter.Limit
	fetch := offset + filter.Limit

	var merged []Entry
	var total int64

	if filter.EntityType == "" || filter.EntityType == domain.EntityQuote {
		var rows []domain.QuoteHistory
		count, err := s.searchTable(ctx, filter, "quote_id", fetch, &rows)
		if err != nil {
			return SearchResult{}, newServiceError(opSearch, "quote_query_failed", err)
		}
		total += count
		for _, row := range rows {
			merged = append(merged, entryFromQuoteRow(row))
		}
	}

	if filter.EntityType == "" || filter.EntityType == domain.EntityOrder {
		var rows []domain.OrderHistory
		count, err := s.searchTable(ctx, filter, "order_id", fetch, &rows)
		if err != nil {
			return SearchResult{}, newServiceError(opSearch, "order_query_failed", err)
		}
		total += count
		for _, row := range rows {
			merged = append(merged, entryFromOrderRow(row))
		}
	}

	if filter.EntityType == "" || filter.EntityType == domain.EntityJob {
		var rows []domain.JobHistory
		count, err := s.searchTable(ctx, filter, "job_id", fetch, &rows)
		if err != nil {
			return SearchResult{}, newServiceError(opSearch, "job_query_failed", err)
		}
		total += count
		for _, row := range rows {
			merged = append(merged, entryFromJobRow(row))
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	if offset >= len(merged) {
		merged = []Entry{}
	} else {
		end := offset + filter.Limit
		if end > len(merged) {
			end = len(merged)
		}
		merged = merged[offset:end]
	}

	return SearchResult{Entries: merged, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// searchTable applies the shared filters against one history table,
// counting the full match set and fetching the newest topK rows into dest.
func (s *Service) searchTable(ctx context.Context, filter SearchFilter, entityColumn string, topK int, dest any) (int64, error) {
	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(dest)
		if filter.EntityID != "" {
			query = query.Where(entityColumn+" = ?", filter.EntityID)
		}
		if filter.ChangeType != "" {
			query = query.Where("change_type = ?", filter.ChangeType)
		}
		if filter.ChangedBy != "" {
			query = query.Where("changed_by = ?", filter.ChangedBy)
		}
		if filter.DateFrom != nil {
			query = query.Where("created_at >= ?", filter.DateFrom.UTC())
		}
		if filter.DateTo != nil {
			query = query.Where("created_at <= ?", filter.DateTo.UTC())
		}
		return query
	}

	var count int64
	if err := base().Count(&count).Error; err != nil {
		return 0, err
	}
	if err := base().Order("created_at DESC").Limit(topK).Find(dest).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Statistics aggregates history counts across the three tables.
type Statistics struct {
	TotalEntries int64            `json:"totalEntries"`
	ByEntityType map[string]int64 `json:"byEntityType"`
	ByChangeType map[string]int64 `json:"byChangeType"`
	ByUser       map[string]int64 `json:"byUser"`
}

type groupCount struct {
	Key string
	N   int64
}

// Statistics returns real aggregate counts by entity type, change type, and
// actor. Trend series are intentionally not produced here; the endpoint for
// them responds not-implemented until per-day grouping lands.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		ByEntityType: make(map[string]int64),
		ByChangeType: make(map[string]int64),
		ByUser:       make(map[string]int64),
	}

	models := []struct {
		entityType domain.EntityType
		model      any
	}{
		{domain.EntityQuote, &domain.QuoteHistory{}},
		{domain.EntityOrder, &domain.OrderHistory{}},
		{domain.EntityJob, &domain.JobHistory{}},
	}

	for _, m := range models {
		var count int64
		if err := s.db.WithContext(ctx).Model(m.model).Count(&count).Error; err != nil {
			return Statistics{}, newServiceError(opStatistics, "count_failed", err)
		}
		stats.ByEntityType[string(m.entityType)] = count
		stats.TotalEntries += count

		var byChange []groupCount
		if err := s.db.WithContext(ctx).Model(m.model).
			Select("change_type AS key, COUNT(*) AS n").
			Group("change_type").Scan(&byChange).Error; err != nil {
			return Statistics{}, newServiceError(opStatistics, "change_type_group_failed", err)
		}
		for _, group := range byChange {
			stats.ByChangeType[group.Key] += group.N
		}

		var byUser []groupCount
		if err := s.db.WithContext(ctx).Model(m.model).
			Select("changed_by AS key, COUNT(*) AS n").
			Group("changed_by").Scan(&byUser).Error; err != nil {
			return Statistics{}, newServiceError(opStatistics, "user_group_failed", err)
		}
		for _, group := range byUser {
			stats.ByUser[group.Key] += group.N
		}
	}

	return stats, nil
}
