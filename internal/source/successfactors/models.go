package successfactors

// odataPage is the OData v4 collection envelope.
type odataPage[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
	Count    *int   `json:"@odata.count"`
}

type catalogItem struct {
	CatalogID string `json:"catalogID"`
}

type courseItem struct {
	ComponentID        string        `json:"componentID"`
	ComponentTypeID    *string       `json:"componentTypeID"`
	Title              *string       `json:"title"`
	Description        *string       `json:"description"`
	ThumbnailURI       *string       `json:"thumbnailURI"`
	RevisionDate       *int64        `json:"revisionDate"`
	DeliveryMethodID   *string       `json:"deliveryMethodID"`
	DeliveryMethodDesc *string       `json:"deliveryMethodDesc"`
	TotalLength        *float64      `json:"totalLength"`
	CreditHours        *float64      `json:"creditHours"`
	CPEHours           *float64      `json:"cpeHours"`
	Active             *bool         `json:"active"`
	SubjectAreasFeed   []subjectArea `json:"SubjectAreasFeed"`
}

type subjectArea struct {
	SubjectAreaID   *string `json:"subjectAreaID"`
	SubjectAreaDesc *string `json:"subjectAreaDesc"`
}

type curriculumItem struct {
	CurriculumID    string  `json:"curriculumID"`
	CurriculumTitle *string `json:"curriculumTitle"`
	Description     *string `json:"description"`
	ThumbnailURI    *string `json:"thumbnailURI"`
}

type programItem struct {
	ProgramID    string  `json:"programID"`
	ProgramTitle *string `json:"programTitle"`
	Description  *string `json:"description"`
	ThumbnailURI *string `json:"thumbnailURI"`
}
