package successfactors

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"lms_extractor/internal/domain"
)

// Doer executes a single classified API call.
type Doer interface {
	Execute(ctx context.Context, method, rawURL string, identity domain.Identity) (*Response, error)
}

type traversalState int

const (
	stateStart traversalState = iota
	stateFetchCourses
	stateFetchCurricula
	stateFetchPrograms
	stateDone
	stateAborted
)

func (s traversalState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateFetchCourses:
		return "fetch_courses"
	case stateFetchCurricula:
		return "fetch_curricula"
	case stateFetchPrograms:
		return "fetch_programs"
	case stateDone:
		return "done"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type traversalStep struct {
	feed Endpoint
	next traversalState
}

// traversalSteps maps each fetch state to its feed and successor.
var traversalSteps = buildTraversalSteps(CatalogFeeds)

func buildTraversalSteps(feeds []Endpoint) map[traversalState]traversalStep {
	states := []traversalState{stateFetchCourses, stateFetchCurricula, stateFetchPrograms}
	if len(feeds) != len(states) {
		panic(fmt.Sprintf("catalog has %d feeds, traversal expects %d", len(feeds), len(states)))
	}

	steps := make(map[traversalState]traversalStep, len(feeds))
	for i, ep := range feeds {
		next := stateDone
		if i+1 < len(states) {
			next = states[i+1]
		}
		steps[states[i]] = traversalStep{feed: ep, next: next}
	}
	return steps
}

// Traverser walks catalog -> courses, curricula, programs. It issues calls
// strictly in sequence and owns no retries.
type Traverser struct {
	exec     Doer
	baseURL  string
	language string
	logger   *slog.Logger
}

func NewTraverser(exec Doer, baseURL, language string, logger *slog.Logger) *Traverser {
	return &Traverser{
		exec:     exec,
		baseURL:  baseURL,
		language: language,
		logger:   logger,
	}
}

// Traverse yields one batch per catalog on the page, in page order. Each
// batch is complete before it is yielded; the first error ends the
// sequence and carries the id of the catalog that failed.
func (t *Traverser) Traverse(ctx context.Context, page domain.CatalogPage) iter.Seq2[domain.CatalogBatch, error] {
	return func(yield func(domain.CatalogBatch, error) bool) {
		for _, id := range page.CatalogIDs {
			if err := ctx.Err(); err != nil {
				yield(domain.CatalogBatch{CatalogID: id}, err)
				return
			}

			t.logger.Info("getting catalog", "catalog_id", id)
			records, err := t.TraverseCatalog(ctx, id)
			if err != nil {
				yield(domain.CatalogBatch{CatalogID: id}, err)
				return
			}
			if !yield(domain.CatalogBatch{CatalogID: id, Records: records}, nil) {
				return
			}
		}
	}
}

// TraverseCatalog fetches the three feeds of one catalog and returns their
// rows in courses, curricula, programs order. An empty result for a feed
// contributes no rows; any error aborts the whole catalog.
func (t *Traverser) TraverseCatalog(ctx context.Context, catalogID string) ([]domain.ComponentRecord, error) {
	var (
		records  []domain.ComponentRecord
		abortErr error
	)
	state := stateStart

	for {
		switch state {
		case stateStart:
			state = stateFetchCourses

		case stateDone:
			return records, nil

		case stateAborted:
			return nil, abortErr

		default:
			step, ok := traversalSteps[state]
			if !ok {
				abortErr = fmt.Errorf("catalog %s: no step for state %s", catalogID, state)
				state = stateAborted
				continue
			}

			rows, err := t.fetchFeed(ctx, step.feed, catalogID)
			if err != nil {
				t.logger.Error("catalog traversal aborted",
					"catalog_id", catalogID,
					"state", state.String(),
					"error", err,
				)
				abortErr = fmt.Errorf("catalog %s: %s feed: %w", catalogID, step.feed.Name, err)
				state = stateAborted
				continue
			}

			t.logger.Debug("fetched feed",
				"catalog_id", catalogID,
				"feed", step.feed.Name,
				"records", len(rows),
			)
			records = append(records, rows...)
			state = step.next
		}
	}
}

func (t *Traverser) fetchFeed(ctx context.Context, ep Endpoint, catalogID string) ([]domain.ComponentRecord, error) {
	next, err := ep.URL(t.baseURL, map[string]string{
		"catalogId": catalogID,
		"language":  t.language,
	})
	if err != nil {
		return nil, err
	}

	var rows []domain.ComponentRecord
	for next != "" {
		resp, err := t.exec.Execute(ctx, http.MethodGet, next, ep.Identity)
		if err != nil {
			return nil, err
		}
		if resp.Empty {
			break
		}

		page, link, err := ep.Shape(resp.Body)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)

		next, err = resolveNext(next, link)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// resolveNext resolves an @odata.nextLink, which may be relative, against
// the URL of the page that returned it. A link to another scheme or host is
// rejected as fatal so the bearer token never leaves the tenant.
func resolveNext(current, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	next := base.ResolveReference(ref)
	if err := sameOrigin(base, next); err != nil {
		return "", err
	}
	return next.String(), nil
}

func sameOrigin(base, u *url.URL) error {
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return fmt.Errorf("%w: next link points to %s://%s, expected %s://%s",
			domain.ErrFatal, u.Scheme, u.Host, base.Scheme, base.Host)
	}
	return nil
}
