package successfactors

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"lms_extractor/internal/domain"
)

const (
	SourceID   = "successfactors"
	SourceName = "SAP SuccessFactors Learning"
)

// Config holds SuccessFactors source configuration.
type Config struct {
	Credentials
	Language          string
	TargetUserID      string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerConfig
}

// Source exposes the catalog traversal and the user-scoped streams of a
// SuccessFactors Learning tenant.
type Source struct {
	exec      *Executor
	traverser *Traverser
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a new SuccessFactors source.
func New(cfg Config, logger *slog.Logger) *Source {
	logger = logger.With("source", SourceID)
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	tokens := NewTokenManager(cfg.Credentials, httpClient, limiter, logger)
	exec := NewExecutor(httpClient, tokens, limiter, cfg.Breaker, logger)

	return &Source{
		exec:      exec,
		traverser: NewTraverser(exec, cfg.BaseURL, cfg.Language, logger),
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// ListCatalogs fetches one page of the catalog root listing. An empty next
// starts from the first page; otherwise next is the NextLink of the
// previous page.
func (s *Source) ListCatalogs(ctx context.Context, next string) (*domain.CatalogPage, error) {
	pageURL, err := CatalogsEndpoint.URL(s.cfg.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	if next != "" {
		if pageURL, err = resolveNext(pageURL, next); err != nil {
			return nil, fmt.Errorf("list catalogs: %w", err)
		}
	}

	resp, err := s.exec.Execute(ctx, http.MethodGet, pageURL, CatalogsEndpoint.Identity)
	if err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}
	if resp.Empty {
		return &domain.CatalogPage{}, nil
	}

	var page odataPage[catalogItem]
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("decode catalogs: %w", err)
	}

	out := &domain.CatalogPage{CatalogIDs: make([]string, 0, len(page.Value))}
	for _, c := range page.Value {
		out.CatalogIDs = append(out.CatalogIDs, c.CatalogID)
	}
	out.NextLink, err = resolveNext(pageURL, page.NextLink)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("listed catalogs", "count", len(out.CatalogIDs), "has_next", out.NextLink != "")
	return out, nil
}

// Traverse walks every catalog on page. See Traverser.Traverse.
func (s *Source) Traverse(ctx context.Context, page domain.CatalogPage) iter.Seq2[domain.CatalogBatch, error] {
	return s.traverser.Traverse(ctx, page)
}

// ScheduledOfferings fetches the offerings scheduled for a course. Courses
// without a type or revision date cannot be looked up and yield nothing.
func (s *Source) ScheduledOfferings(ctx context.Context, course domain.ComponentRecord) ([]domain.Record, error) {
	if string(course.Feed) != ScheduledOfferingsEndpoint.Parent {
		return nil, fmt.Errorf("scheduled offerings: %s record %s is not a course", course.Feed, course.ID)
	}
	if course.TypeID == nil || course.RevisionDate == nil {
		s.logger.Debug("skipping scheduled offerings, course context incomplete", "component_id", course.ID)
		return nil, nil
	}

	return s.fetchRecords(ctx, ScheduledOfferingsEndpoint, map[string]string{
		"componentID":     course.ID,
		"componentTypeID": *course.TypeID,
		"revisionDate":    strconv.FormatInt(*course.RevisionDate, 10),
	}, nil)
}

// LearningHistory fetches the target user's learning history completed
// since fromDate. Every row is stamped with toDate as its fromDate, which
// becomes the bookmark for the next run.
func (s *Source) LearningHistory(ctx context.Context, fromDate, toDate int64) ([]domain.Record, error) {
	s.logger.Info("filtering learning history",
		"from_date", time.Unix(fromDate, 0).UTC().Format(time.DateTime),
	)
	return s.fetchRecords(ctx, LearningHistoryEndpoint, map[string]string{
		"targetUserId": s.cfg.TargetUserID,
		"fromDate":     strconv.FormatInt(fromDate, 10),
	}, func(row map[string]any) {
		row["fromDate"] = toDate
	})
}

// UserTodoLearningItems fetches the target user's to-do learning items.
func (s *Source) UserTodoLearningItems(ctx context.Context) ([]domain.Record, error) {
	return s.fetchRecords(ctx, UserTodoLearningItemsEndpoint, map[string]string{
		"targetUserId": s.cfg.TargetUserID,
	}, nil)
}

func (s *Source) fetchRecords(ctx context.Context, ep Endpoint, params map[string]string, post func(map[string]any)) ([]domain.Record, error) {
	next, err := ep.URL(s.cfg.BaseURL, params)
	if err != nil {
		return nil, err
	}

	extractedAt := s.now().UTC()
	var records []domain.Record
	for next != "" {
		resp, err := s.exec.Execute(ctx, http.MethodGet, next, ep.Identity)
		if err != nil {
			return records, fmt.Errorf("fetch %s: %w", ep.Name, err)
		}
		if resp.Empty {
			break
		}

		page, err := decodeRows(resp.Body)
		if err != nil {
			return records, fmt.Errorf("decode %s: %w", ep.Name, err)
		}

		for _, row := range page.Value {
			key, ok := row[ep.PrimaryKey]
			if !ok || key == nil {
				s.logger.Warn("skipping row without primary key", "stream", ep.Name, "key", ep.PrimaryKey)
				continue
			}
			if post != nil {
				post(row)
			}
			records = append(records, domain.Record{
				Stream:      ep.Name,
				Key:         fmt.Sprint(key),
				Data:        row,
				ExtractedAt: extractedAt,
			})
		}

		next, err = resolveNext(next, page.NextLink)
		if err != nil {
			return records, err
		}
	}

	s.logger.Debug("fetched records", "stream", ep.Name, "count", len(records))
	return records, nil
}

// decodeRows keeps numbers as json.Number so identifiers and epoch
// timestamps survive without float rounding.
func decodeRows(body []byte) (*odataPage[map[string]any], error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var page odataPage[map[string]any]
	if err := dec.Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}
