// Package emitter converts canonical catalog rows into the outward record
// shape, one record per row, in the order given.
package emitter

import (
	"time"

	"lms_extractor/internal/domain"
)

// Emit converts rows into catalogs-stream records. It never filters or
// reorders. Keys combine feed and id because ids are only unique within a
// feed.
func Emit(rows []domain.ComponentRecord, extractedAt time.Time) []domain.Record {
	out := make([]domain.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Record{
			Stream:      domain.StreamCatalogs,
			Key:         Key(r),
			Data:        Fields(r),
			ExtractedAt: extractedAt,
		})
	}
	return out
}

// Key returns the record key for a row.
func Key(r domain.ComponentRecord) string {
	return string(r.Feed) + ":" + r.ID
}

// Fields returns all 15 canonical fields. Absent values are present with a
// nil value so they serialize as JSON null.
func Fields(r domain.ComponentRecord) map[string]any {
	return map[string]any{
		"Feed":               string(r.Feed),
		"ID":                 r.ID,
		"Title":              value(r.Title),
		"Description":        value(r.Description),
		"thumbnailURI":       value(r.ThumbnailURI),
		"typeID":             value(r.TypeID),
		"revisionDate":       value(r.RevisionDate),
		"deliveryMethodID":   value(r.DeliveryMethodID),
		"deliveryMethodDesc": value(r.DeliveryMethodDesc),
		"totalLength":        value(r.TotalLength),
		"creditHours":        value(r.CreditHours),
		"cpeHours":           value(r.CPEHours),
		"active":             value(r.Active),
		"subjectAreaID":      value(r.SubjectAreaID),
		"subjectAreaDesc":    value(r.SubjectAreaDesc),
	}
}

func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
