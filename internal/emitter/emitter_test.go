package emitter

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_extractor/internal/domain"
	"lms_extractor/testdata/utils"
)

func TestEmit_PreservesOrderOneToOne(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []domain.ComponentRecord{
		{Feed: domain.FeedCourses, ID: "C-1"},
		{Feed: domain.FeedCurricula, ID: "CUR-1"},
		{Feed: domain.FeedPrograms, ID: "P-1"},
		{Feed: domain.FeedCourses, ID: "C-2"},
	}

	out := Emit(rows, at)

	require.Len(t, out, 4)
	assert.Equal(t, []string{"courses:C-1", "curricula:CUR-1", "programs:P-1", "courses:C-2"},
		[]string{out[0].Key, out[1].Key, out[2].Key, out[3].Key})
	for _, r := range out {
		assert.Equal(t, domain.StreamCatalogs, r.Stream)
		assert.Equal(t, at, r.ExtractedAt)
		assert.Len(t, r.Data, 15)
	}
}

func TestEmit_Empty(t *testing.T) {
	out := Emit(nil, time.Now())
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFields_CourseValues(t *testing.T) {
	row := domain.ComponentRecord{
		Feed:               domain.FeedCourses,
		ID:                 "C-1",
		Title:              utils.Ptr("Go basics"),
		TypeID:             utils.Ptr("COURSE"),
		RevisionDate:       utils.Ptr(int64(1700000000000)),
		TotalLength:        utils.Ptr(1.5),
		Active:             utils.Ptr(true),
		SubjectAreaID:      nil,
		DeliveryMethodDesc: utils.Ptr("Online"),
	}

	f := Fields(row)

	assert.Equal(t, "courses", f["Feed"])
	assert.Equal(t, "Go basics", f["Title"])
	assert.Equal(t, int64(1700000000000), f["revisionDate"])
	assert.Equal(t, 1.5, f["totalLength"])
	assert.Equal(t, true, f["active"])
	assert.Contains(t, f, "subjectAreaID")
	assert.Nil(t, f["subjectAreaID"])
	assert.Nil(t, f["creditHours"])
}

func TestFields_NullsSurviveSerialization(t *testing.T) {
	row := domain.ComponentRecord{
		Feed:         domain.FeedPrograms,
		ID:           "P-1",
		Title:        utils.Ptr("Leadership"),
		Description:  utils.Ptr("desc"),
		ThumbnailURI: utils.Ptr("https://img"),
	}

	b, err := json.Marshal(Fields(row))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	require.Len(t, decoded, 15)
	for _, k := range []string{"typeID", "revisionDate", "deliveryMethodID", "deliveryMethodDesc",
		"totalLength", "creditHours", "cpeHours", "active", "subjectAreaID", "subjectAreaDesc"} {
		v, ok := decoded[k]
		assert.True(t, ok, k)
		assert.Nil(t, v, k)
	}
	for _, k := range []string{"Feed", "ID", "Title", "Description", "thumbnailURI"} {
		assert.NotNil(t, decoded[k], k)
	}
}
