package successfactors

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_extractor/internal/domain"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name   string
		ep     Endpoint
		params map[string]string
		want   string
	}{
		{
			name: "catalogs",
			ep:   CatalogsEndpoint,
			want: "https://lms.test/learning/odatav4/public/admin/catalog-service/v1/Catalogs",
		},
		{
			name:   "courses feed",
			ep:     CoursesFeedEndpoint,
			params: map[string]string{"catalogId": "CAT1", "language": "English"},
			want: "https://lms.test/learning/odatav4/public/admin/catalog-service/v1/CatalogsFeed('CAT1')/CoursesFeed" +
				"?$filter=criteria%2FlocaleID%20eq%20%27English%27",
		},
		{
			name:   "learning history counts",
			ep:     LearningHistoryEndpoint,
			params: map[string]string{"targetUserId": "sfadmin", "fromDate": "1325376000"},
			want: "https://lms.test/learning/odatav4/public/user/userlearning-service/v1/learninghistorys" +
				"?$filter=criteria%2FtargetUserID%20eq%20%27sfadmin%27%20and%20criteria%2FfromDate%20eq%201325376000&$count=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ep.URL("https://lms.test/", tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointURL_QuotesValues(t *testing.T) {
	got, err := UserTodoLearningItemsEndpoint.URL("https://lms.test", map[string]string{"targetUserId": "o'brien"})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "criteria/maxRowNum eq 999999 and criteria/targetUserID eq 'o''brien'", u.Query().Get("$filter"))
}

func TestEndpointURL_MissingParameter(t *testing.T) {
	_, err := CoursesFeedEndpoint.URL("https://lms.test", map[string]string{"language": "English"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing parameters: catalogId")
}

func TestCatalogFeedsOrder(t *testing.T) {
	names := make([]string, 0, len(CatalogFeeds))
	for _, ep := range CatalogFeeds {
		names = append(names, ep.Name)
		assert.Equal(t, domain.IdentityAdmin, ep.Identity)
		assert.Equal(t, CatalogsEndpoint.Name, ep.Parent)
		assert.NotNil(t, ep.Shape)
	}
	assert.Equal(t, []string{"courses", "curricula", "programs"}, names)
}

func TestShapeCourses(t *testing.T) {
	body := `{
		"value": [
			{
				"componentID": "C1",
				"componentTypeID": "ILT",
				"title": "Forklift Safety",
				"revisionDate": 1609459200000,
				"totalLength": 1.5,
				"creditHours": 2,
				"active": true,
				"SubjectAreasFeed": [
					{"subjectAreaID": "SAFETY", "subjectAreaDesc": "Safety"},
					{"subjectAreaID": "OPS", "subjectAreaDesc": "Operations"}
				]
			},
			{"componentID": "C2", "title": "No Subject", "SubjectAreasFeed": []},
			{"componentID": "C3"}
		],
		"@odata.nextLink": "CoursesFeed?$skiptoken=3"
	}`

	rows, next, err := shapeCourses([]byte(body))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "CoursesFeed?$skiptoken=3", next)

	c1 := rows[0]
	assert.Equal(t, domain.FeedCourses, c1.Feed)
	assert.Equal(t, "C1", c1.ID)
	assert.Equal(t, "ILT", *c1.TypeID)
	assert.Equal(t, int64(1609459200000), *c1.RevisionDate)
	assert.Equal(t, 1.5, *c1.TotalLength)
	assert.Equal(t, 2.0, *c1.CreditHours)
	assert.True(t, *c1.Active)
	assert.Equal(t, "SAFETY", *c1.SubjectAreaID)
	assert.Equal(t, "Safety", *c1.SubjectAreaDesc)
	assert.Nil(t, c1.CPEHours)

	for _, r := range rows[1:] {
		assert.Nil(t, r.SubjectAreaID)
		assert.Nil(t, r.SubjectAreaDesc)
		assert.Nil(t, r.Description)
	}
}

func TestShapeCurriculaAndPrograms(t *testing.T) {
	curricula, next, err := shapeCurricula([]byte(`{"value":[{"curriculumID":"CUR1","curriculumTitle":"Onboarding","description":"Start here"}]}`))
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, curricula, 1)
	assert.Equal(t, domain.FeedCurricula, curricula[0].Feed)
	assert.Equal(t, "Onboarding", *curricula[0].Title)
	assert.Nil(t, curricula[0].TypeID)
	assert.Nil(t, curricula[0].Active)

	programs, _, err := shapePrograms([]byte(`{"value":[{"programID":"P1","programTitle":"Leadership","thumbnailURI":"/img/p1.png"}]}`))
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, domain.FeedPrograms, programs[0].Feed)
	assert.Equal(t, "/img/p1.png", *programs[0].ThumbnailURI)
	assert.Nil(t, programs[0].Description)

	_, _, err = shapePrograms([]byte(`not json`))
	assert.Error(t, err)
}

func TestResolveNext(t *testing.T) {
	next, err := resolveNext("https://lms.test/a/b/Feed?x=1", "Feed?$skiptoken=2")
	require.NoError(t, err)
	assert.Equal(t, "https://lms.test/a/b/Feed?$skiptoken=2", next)

	next, err = resolveNext("https://lms.test/a/b/Feed?x=1", "https://lms.test/c/Feed?p=2")
	require.NoError(t, err)
	assert.Equal(t, "https://lms.test/c/Feed?p=2", next)

	next, err = resolveNext("https://lms.test/a", "")
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestResolveNext_RejectsOtherOrigin(t *testing.T) {
	tests := []struct {
		name string
		link string
	}{
		{name: "other host", link: "https://other.test/Feed?p=2"},
		{name: "other port", link: "https://lms.test:8443/Feed?p=2"},
		{name: "downgraded scheme", link: "http://lms.test/Feed?p=2"},
		{name: "scheme relative", link: "//other.test/Feed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveNext("https://lms.test/a/b/Feed", tt.link)

			require.Error(t, err)
			assert.True(t, IsFatal(err))
			assert.False(t, IsRetriable(err))
		})
	}
}
