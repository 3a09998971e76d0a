package domain

// Identity selects which OAuth client-credential scope a request runs under.
type Identity string

const (
	IdentityAdmin Identity = "admin"
	IdentityUser  Identity = "user"
)

func (i Identity) Valid() bool {
	return i == IdentityAdmin || i == IdentityUser
}

// Feed is one of the sub-collections nested under a catalog.
type Feed string

const (
	FeedCourses   Feed = "courses"
	FeedCurricula Feed = "curricula"
	FeedPrograms  Feed = "programs"
)

// ComponentRecord is the canonical, fixed-width row produced for every item
// of every catalog feed. Fields a feed does not carry stay nil and serialize
// as JSON null.
type ComponentRecord struct {
	Feed               Feed     `json:"Feed"`
	ID                 string   `json:"ID"`
	Title              *string  `json:"Title"`
	Description        *string  `json:"Description"`
	ThumbnailURI       *string  `json:"thumbnailURI"`
	TypeID             *string  `json:"typeID"`
	RevisionDate       *int64   `json:"revisionDate"`
	DeliveryMethodID   *string  `json:"deliveryMethodID"`
	DeliveryMethodDesc *string  `json:"deliveryMethodDesc"`
	TotalLength        *float64 `json:"totalLength"`
	CreditHours        *float64 `json:"creditHours"`
	CPEHours           *float64 `json:"cpeHours"`
	Active             *bool    `json:"active"`
	SubjectAreaID      *string  `json:"subjectAreaID"`
	SubjectAreaDesc    *string  `json:"subjectAreaDesc"`
}

// CatalogPage is one page of the catalog root listing.
type CatalogPage struct {
	CatalogIDs []string
	NextLink   string
}

// CatalogBatch holds every record discovered under a single catalog, in
// courses, curricula, programs order.
type CatalogBatch struct {
	CatalogID string
	Records   []ComponentRecord
}
