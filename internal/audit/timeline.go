package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
)

// EntityIDs names the related entities whose histories form one case.
// Empty fields are skipped.
type EntityIDs struct {
	QuoteID string
	OrderID string
	JobID   string
}

func (ids EntityIDs) empty() bool {
	return ids.QuoteID == "" && ids.OrderID == "" && ids.JobID == ""
}

// PrimaryType resolves the dominant entity type by priority
// QUOTE > ORDER > JOB, falling back to UNKNOWN.
func (ids EntityIDs) PrimaryType() domain.EntityType {
	switch {
	case ids.QuoteID != "":
		return domain.EntityQuote
	case ids.OrderID != "":
		return domain.EntityOrder
	case ids.JobID != "":
		return domain.EntityJob
	default:
		return domain.EntityUnknown
	}
}

// PrimaryID returns the first provided id, or "unknown" when none is set.
func (ids EntityIDs) PrimaryID() string {
	switch {
	case ids.QuoteID != "":
		return ids.QuoteID
	case ids.OrderID != "":
		return ids.OrderID
	case ids.JobID != "":
		return ids.JobID
	default:
		return "unknown"
	}
}

// CompleteHistory is the merged timeline plus per-entity views filtered from
// the already-sorted merge, not re-queried.
type CompleteHistory struct {
	Timeline []Entry `json:"timeline"`
	Quote    []Entry `json:"quote"`
	Order    []Entry `json:"order"`
	Job      []Entry `json:"job"`
}

// FetchHistory merges the history rows for the provided entity ids into one
// sequence sorted by creation time ascending. A failure querying one table
// is logged and does not abort the aggregation; the remaining tables still
// contribute (partial-result policy), which is why no error is returned.
func (s *Service) FetchHistory(ctx context.Context, ids EntityIDs) []Entry {
	entries := make([]Entry, 0, 16)

	if ids.QuoteID != "" {
		var rows []domain.QuoteHistory
		err := s.db.WithContext(ctx).
			Where("quote_id = ?", ids.QuoteID).
			Order("created_at ASC").
			Find(&rows).Error
		if err != nil {
			s.loggerOrDefault().Error("quote history query failed",
				zap.String("quote_id", ids.QuoteID), zap.Error(err))
		} else {
			for _, row := range rows {
				entries = append(entries, entryFromQuoteRow(row))
			}
		}
	}

	if ids.OrderID != "" {
		var rows []domain.OrderHistory
		err := s.db.WithContext(ctx).
			Where("order_id = ?", ids.OrderID).
			Order("created_at ASC").
			Find(&rows).Error
		if err != nil {
			s.loggerOrDefault().Error("order history query failed",
				zap.String("order_id", ids.OrderID), zap.Error(err))
		} else {
			for _, row := range rows {
				entries = append(entries, entryFromOrderRow(row))
			}
		}
	}

	if ids.JobID != "" {
		var rows []domain.JobHistory
		err := s.db.WithContext(ctx).
			Where("job_id = ?", ids.JobID).
			Order("created_at ASC").
			Find(&rows).Error
		if err != nil {
			s.loggerOrDefault().Error("job history query failed",
				zap.String("job_id", ids.JobID), zap.Error(err))
		} else {
			for _, row := range rows {
				entries = append(entries, entryFromJobRow(row))
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

// CompleteHistory wraps FetchHistory, exposing the merged timeline together
// with the three per-entity views.
func (s *Service) CompleteHistory(ctx context.Context, ids EntityIDs) CompleteHistory {
	timeline := s.FetchHistory(ctx, ids)
	history := CompleteHistory{
		Timeline: timeline,
		Quote:    make([]Entry, 0),
		Order:    make([]Entry, 0),
		Job:      make([]Entry, 0),
	}
	for _, entry := range timeline {
		switch entry.EntityType {
		case domain.EntityQuote:
			history.Quote = append(history.Quote, entry)
		case domain.EntityOrder:
			history.Order = append(history.Order, entry)
		case domain.EntityJob:
			history.Job = append(history.Job, entry)
		}
	}
	return history
}

// EntityHistory returns the raw history rows for a single entity, newest
// first. Unlike FetchHistory this is a single-table query and a failure is
// surfaced to the caller.
func (s *Service) EntityHistory(ctx context.Context, entityType domain.EntityType, entityID string) ([]Entry, error) {
	entries := make([]Entry, 0, 16)

	switch entityType {
	case domain.EntityQuote:
		var rows []domain.QuoteHistory
		if err := s.db.WithContext(ctx).Where("quote_id = ?", entityID).
			Order("created_at DESC").Find(&rows).Error; err != nil {
			return nil, newServiceError(opEntityHistory, "quote_query_failed", err)
		}
		for _, row := range rows {
			entries = append(entries, entryFromQuoteRow(row))
		}
	case domain.EntityOrder:
		var rows []domain.OrderHistory
		if err := s.db.WithContext(ctx).Where("order_id = ?", entityID).
			Order("created_at DESC").Find(&rows).Error; err != nil {
			return nil, newServiceError(opEntityHistory, "order_query_failed", err)
		}
		for _, row := range rows {
			entries = append(entries, entryFromOrderRow(row))
		}
	case domain.EntityJob:
		var rows []domain.JobHistory
		if err := s.db.WithContext(ctx).Where("job_id = ?", entityID).
			Order("created_at DESC").Find(&rows).Error; err != nil {
			return nil, newServiceError(opEntityHistory, "job_query_failed", err)
		}
		for _, row := range rows {
			entries = append(entries, entryFromJobRow(row))
		}
	default:
		return nil, newServiceError(opEntityHistory, "unknown_entity_type", fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType))
	}

	return entries, nil
}
