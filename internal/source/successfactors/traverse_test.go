package successfactors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_extractor/internal/domain"
	"lms_extractor/internal/emitter"
)

const testBase = "https://lms.test"

type doerResult struct {
	body  string
	empty bool
	err   error
}

// fakeDoer answers by exact URL and records every call in order.
type fakeDoer struct {
	results map[string]doerResult
	calls   []string
}

func (d *fakeDoer) Execute(_ context.Context, _, rawURL string, identity domain.Identity) (*Response, error) {
	d.calls = append(d.calls, rawURL)
	if identity != domain.IdentityAdmin {
		return nil, fmt.Errorf("catalog feeds must use the admin identity, got %s", identity)
	}
	r, ok := d.results[rawURL]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", rawURL)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.empty {
		return &Response{StatusCode: 500, Empty: true}, nil
	}
	return &Response{StatusCode: 200, Body: []byte(r.body)}, nil
}

func feedURL(t *testing.T, ep Endpoint, catalogID string) string {
	t.Helper()
	u, err := ep.URL(testBase, map[string]string{"catalogId": catalogID, "language": "English"})
	require.NoError(t, err)
	return u
}

func newTestTraverser(d *fakeDoer) *Traverser {
	return NewTraverser(d, testBase, "English", discardLogger())
}

func collect(t *testing.T, tr *Traverser, ids ...string) ([]domain.CatalogBatch, error) {
	t.Helper()
	var batches []domain.CatalogBatch
	for batch, err := range tr.Traverse(context.Background(), domain.CatalogPage{CatalogIDs: ids}) {
		if err != nil {
			return batches, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func TestTraversalStepsFollowCatalogFeeds(t *testing.T) {
	var names []string
	state := stateFetchCourses
	for state != stateDone {
		step, ok := traversalSteps[state]
		require.True(t, ok, "no step for %s", state)
		names = append(names, step.feed.Name)
		state = step.next
	}

	assert.Equal(t, []string{"courses", "curricula", "programs"}, names)
	assert.Panics(t, func() { buildTraversalSteps(CatalogFeeds[:2]) })
}

func TestTraverseCatalog_FeedOrderAndPagination(t *testing.T) {
	coursesPage2 := testBase + "/next/courses/c1?page=2"
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"): {body: `{"value":[{"componentID":"C1"}],"@odata.nextLink":"` + coursesPage2 + `"}`},
		coursesPage2:                            {body: `{"value":[{"componentID":"C2"}]}`},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {body: `{"value":[{"curriculumID":"CUR1"}]}`},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {body: `{"value":[{"programID":"P1"},{"programID":"P2"}]}`},
	}}

	rows, err := newTestTraverser(d).TraverseCatalog(context.Background(), "c1")
	require.NoError(t, err)

	var keys []string
	for _, r := range rows {
		keys = append(keys, emitter.Key(r))
	}
	assert.Equal(t, []string{"courses:C1", "courses:C2", "curricula:CUR1", "programs:P1", "programs:P2"}, keys)
	assert.Equal(t, []string{
		feedURL(t, CoursesFeedEndpoint, "c1"),
		coursesPage2,
		feedURL(t, CurriculaFeedEndpoint, "c1"),
		feedURL(t, ProgramsFeedEndpoint, "c1"),
	}, d.calls)
}

func TestTraverseCatalog_ForeignNextLinkAborts(t *testing.T) {
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"): {body: `{"value":[{"componentID":"C1"}],"@odata.nextLink":"https://attacker.test/steal"}`},
	}}

	rows, err := newTestTraverser(d).TraverseCatalog(context.Background(), "c1")

	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, IsFatal(err))
	assert.Equal(t, []string{feedURL(t, CoursesFeedEndpoint, "c1")}, d.calls)
}

func TestTraverseCatalog_EmptySubjectAreasYieldNulls(t *testing.T) {
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {body: `{"value":[{"componentID":"C1","title":"Forklift","SubjectAreasFeed":[]}]}`},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {empty: true},
	}}

	rows, err := newTestTraverser(d).TraverseCatalog(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	fields := emitter.Fields(rows[0])
	assert.Len(t, fields, 15)
	assert.Equal(t, "Forklift", fields["Title"])
	assert.Contains(t, fields, "subjectAreaID")
	assert.Nil(t, fields["subjectAreaID"])
	assert.Nil(t, fields["subjectAreaDesc"])
}

func TestTraverseCatalog_EmptyFeedContinues(t *testing.T) {
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {empty: true},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {body: `{"value":[{"programID":"P1"}]}`},
	}}

	rows, err := newTestTraverser(d).TraverseCatalog(context.Background(), "c1")

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.FeedPrograms, rows[0].Feed)
	assert.Len(t, d.calls, 3)
}

func TestTraverseCatalog_AllEmpty(t *testing.T) {
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {empty: true},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {empty: true},
	}}

	rows, err := newTestTraverser(d).TraverseCatalog(context.Background(), "c1")

	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTraverseCatalog_FatalAborts(t *testing.T) {
	fatal := &APIError{Kind: KindFatal, StatusCode: 404, Reason: "Not Found", Path: "/CurriculaFeed"}
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {body: `{"value":[{"componentID":"C1"}]}`},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {err: fatal},
	}}

	rows, err := newTestTraverser(d).TraverseCatalog(context.Background(), "c1")

	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "catalog c1: curricula feed")
	assert.Len(t, d.calls, 2, "programs must not be fetched after an abort")
}

func TestTraverse_YieldsCatalogsInOrder(t *testing.T) {
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {body: `{"value":[{"componentID":"A"}]}`},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {empty: true},
		feedURL(t, CoursesFeedEndpoint, "c2"):   {empty: true},
		feedURL(t, CurriculaFeedEndpoint, "c2"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c2"):  {body: `{"value":[{"programID":"B"}]}`},
	}}

	batches, err := collect(t, newTestTraverser(d), "c1", "c2")

	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "c1", batches[0].CatalogID)
	assert.Equal(t, "A", batches[0].Records[0].ID)
	assert.Equal(t, "c2", batches[1].CatalogID)
	assert.Equal(t, "B", batches[1].Records[0].ID)
}

func TestTraverse_StopsAtFirstError(t *testing.T) {
	retriable := &APIError{Kind: KindRetriable, StatusCode: 503, Reason: "Service Unavailable"}
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {empty: true},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {empty: true},
		feedURL(t, CoursesFeedEndpoint, "c2"):   {err: retriable},
	}}

	batches, err := collect(t, newTestTraverser(d), "c1", "c2", "c3")

	require.Error(t, err)
	assert.True(t, IsRetriable(err))
	require.Len(t, batches, 1)
	assert.Equal(t, "c1", batches[0].CatalogID)
	assert.Len(t, d.calls, 4)
}

func TestTraverse_ConsumerStopsEarly(t *testing.T) {
	d := &fakeDoer{results: map[string]doerResult{
		feedURL(t, CoursesFeedEndpoint, "c1"):   {empty: true},
		feedURL(t, CurriculaFeedEndpoint, "c1"): {empty: true},
		feedURL(t, ProgramsFeedEndpoint, "c1"):  {empty: true},
	}}

	for range newTestTraverser(d).Traverse(context.Background(), domain.CatalogPage{CatalogIDs: []string{"c1", "c2"}}) {
		break
	}

	assert.Len(t, d.calls, 3)
}

func TestTraverse_CanceledContext(t *testing.T) {
	d := &fakeDoer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range newTestTraverser(d).Traverse(ctx, domain.CatalogPage{CatalogIDs: []string{"c1"}}) {
		gotErr = err
	}

	assert.ErrorIs(t, gotErr, context.Canceled)
	assert.Empty(t, d.calls)
}
