package successfactors

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"lms_extractor/internal/domain"
)

const (
	catalogServicePath      = "/learning/odatav4/public/admin/catalog-service/v1"
	userLearningServicePath = "/learning/odatav4/public/user/userlearning-service/v1"
	learningPlanServicePath = "/learning/odatav4/public/user/learningplan-service/v1"
)

// shapeFunc turns one feed response page into canonical rows and returns
// the link to the next page, if any.
type shapeFunc func(body []byte) ([]domain.ComponentRecord, string, error)

// Endpoint describes one API collection. Path and Filter may contain
// {name} placeholders that are filled from the parent record or the
// configuration when the URL is rendered.
type Endpoint struct {
	Name       string
	Path       string
	Filter     string
	Count      bool
	Identity   domain.Identity
	Parent     string
	PrimaryKey string
	// Shape is set for catalog feeds only; other endpoints yield raw rows.
	Shape shapeFunc
}

var (
	CatalogsEndpoint = Endpoint{
		Name:       "catalogs",
		Path:       catalogServicePath + "/Catalogs",
		Identity:   domain.IdentityAdmin,
		PrimaryKey: "catalogID",
	}

	CoursesFeedEndpoint = Endpoint{
		Name:       string(domain.FeedCourses),
		Path:       catalogServicePath + "/CatalogsFeed('{catalogId}')/CoursesFeed",
		Filter:     "criteria/localeID eq '{language}'",
		Identity:   domain.IdentityAdmin,
		Parent:     "catalogs",
		PrimaryKey: "componentID",
		Shape:      shapeCourses,
	}

	CurriculaFeedEndpoint = Endpoint{
		Name:       string(domain.FeedCurricula),
		Path:       catalogServicePath + "/CatalogsFeed('{catalogId}')/CurriculaFeed",
		Filter:     "criteria/localeID eq '{language}'",
		Identity:   domain.IdentityAdmin,
		Parent:     "catalogs",
		PrimaryKey: "curriculumID",
		Shape:      shapeCurricula,
	}

	ProgramsFeedEndpoint = Endpoint{
		Name:       string(domain.FeedPrograms),
		Path:       catalogServicePath + "/CatalogsFeed('{catalogId}')/ProgramsFeed",
		Filter:     "criteria/localeID eq '{language}'",
		Identity:   domain.IdentityAdmin,
		Parent:     "catalogs",
		PrimaryKey: "programID",
		Shape:      shapePrograms,
	}

	ScheduledOfferingsEndpoint = Endpoint{
		Name:       domain.StreamScheduledOfferings,
		Path:       learningPlanServicePath + "/Scheduledofferings",
		Filter:     "lisCriteria/itemID eq '{componentID}' and lisCriteria/itemTypeID eq '{componentTypeID}' and lisCriteria/revisionDate eq {revisionDate}",
		Identity:   domain.IdentityUser,
		Parent:     string(domain.FeedCourses),
		PrimaryKey: "scheduleID",
	}

	LearningHistoryEndpoint = Endpoint{
		Name:       domain.StreamLearningHistory,
		Path:       userLearningServicePath + "/learninghistorys",
		Filter:     "criteria/targetUserID eq '{targetUserId}' and criteria/fromDate eq {fromDate}",
		Count:      true,
		Identity:   domain.IdentityUser,
		PrimaryKey: "componentID",
	}

	UserTodoLearningItemsEndpoint = Endpoint{
		Name:       domain.StreamUserTodoLearningItems,
		Path:       learningPlanServicePath + "/UserTodoLearningItems",
		Filter:     "criteria/maxRowNum eq 999999 and criteria/targetUserID eq '{targetUserId}'",
		Identity:   domain.IdentityAdmin,
		PrimaryKey: "sku",
	}
)

var endpoints = []Endpoint{
	CatalogsEndpoint,
	CoursesFeedEndpoint,
	CurriculaFeedEndpoint,
	ProgramsFeedEndpoint,
	ScheduledOfferingsEndpoint,
	LearningHistoryEndpoint,
	UserTodoLearningItemsEndpoint,
}

// CatalogFeeds lists the child feeds of a catalog in traversal order.
var CatalogFeeds = childrenOf(CatalogsEndpoint.Name)

func childrenOf(parent string) []Endpoint {
	var out []Endpoint
	for _, ep := range endpoints {
		if ep.Parent == parent {
			out = append(out, ep)
		}
	}
	return out
}

var placeholder = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// URL renders the endpoint against baseURL. Placeholder values are quoted
// for OData string literals and escaped for their position in the URL.
func (e Endpoint) URL(baseURL string, params map[string]string) (string, error) {
	path, err := render(e.Path, params, url.PathEscape)
	if err != nil {
		return "", fmt.Errorf("%s path: %w", e.Name, err)
	}

	var query []string
	if e.Filter != "" {
		filter, err := render(e.Filter, params, func(s string) string { return s })
		if err != nil {
			return "", fmt.Errorf("%s filter: %w", e.Name, err)
		}
		query = append(query, "$filter="+escapeQueryValue(filter))
	}
	if e.Count {
		query = append(query, "$count=true")
	}

	u := strings.TrimRight(baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + strings.Join(query, "&")
	}
	return u, nil
}

func render(tmpl string, params map[string]string, escape func(string) string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return escape(odataQuote(v))
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing parameters: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// odataQuote escapes a value for use inside a single-quoted OData literal.
func odataQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func escapeQueryValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func shapeCourses(body []byte) ([]domain.ComponentRecord, string, error) {
	var page odataPage[courseItem]
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("decode courses feed: %w", err)
	}

	records := make([]domain.ComponentRecord, 0, len(page.Value))
	for _, c := range page.Value {
		rec := domain.ComponentRecord{
			Feed:               domain.FeedCourses,
			ID:                 c.ComponentID,
			Title:              c.Title,
			Description:        c.Description,
			ThumbnailURI:       c.ThumbnailURI,
			TypeID:             c.ComponentTypeID,
			RevisionDate:       c.RevisionDate,
			DeliveryMethodID:   c.DeliveryMethodID,
			DeliveryMethodDesc: c.DeliveryMethodDesc,
			TotalLength:        c.TotalLength,
			CreditHours:        c.CreditHours,
			CPEHours:           c.CPEHours,
			Active:             c.Active,
		}
		if len(c.SubjectAreasFeed) > 0 {
			rec.SubjectAreaID = c.SubjectAreasFeed[0].SubjectAreaID
			rec.SubjectAreaDesc = c.SubjectAreasFeed[0].SubjectAreaDesc
		}
		records = append(records, rec)
	}
	return records, page.NextLink, nil
}

func shapeCurricula(body []byte) ([]domain.ComponentRecord, string, error) {
	var page odataPage[curriculumItem]
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("decode curricula feed: %w", err)
	}

	records := make([]domain.ComponentRecord, 0, len(page.Value))
	for _, c := range page.Value {
		records = append(records, domain.ComponentRecord{
			Feed:         domain.FeedCurricula,
			ID:           c.CurriculumID,
			Title:        c.CurriculumTitle,
			Description:  c.Description,
			ThumbnailURI: c.ThumbnailURI,
		})
	}
	return records, page.NextLink, nil
}

func shapePrograms(body []byte) ([]domain.ComponentRecord, string, error) {
	var page odataPage[programItem]
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("decode programs feed: %w", err)
	}

	records := make([]domain.ComponentRecord, 0, len(page.Value))
	for _, p := range page.Value {
		records = append(records, domain.ComponentRecord{
			Feed:         domain.FeedPrograms,
			ID:           p.ProgramID,
			Title:        p.ProgramTitle,
			Description:  p.Description,
			ThumbnailURI: p.ThumbnailURI,
		})
	}
	return records, page.NextLink, nil
}
