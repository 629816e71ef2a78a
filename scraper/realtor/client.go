package realtor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"realtor-scraper/models"
	"realtor-scraper/utils"
)

const (
	graphqlPath = "/frontdoor/graphql"
	detailPath  = "/realestateandhomes-detail/"

	// maxPageSize is the upstream cap on search page size.
	maxPageSize = 200

	searchClientName     = "RDC_WEB_SRP_FS_PAGE"
	searchClientVersion  = "3.0.2449"
	detailsClientName    = "RDC_WEB_DETAILS_PAGE"
	detailsClientVersion = "2.161.0"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
)

const searchQueryGQL = `query ConsumerSearchQuery($query: HomeSearchCriteria!, $limit: Int, $offset: Int, $sort: [SearchAPISort]) {
  home_search(query: $query, limit: $limit, offset: $offset, sort: $sort) {
    total
    results {
      property_id
      listing_id
      permalink
      list_price
      list_date
      location { address { line city state_code postal_code } county { name } }
      description { text sqft beds baths }
      advertisers { name href phones { number type primary } }
    }
  }
}`

const detailQueryGQL = `query FullPropertyDetails($propertyId: ID!, $listingId: ID) {
  home(property_id: $propertyId, listing_id: $listingId) {
    property_id
    listing_id
    permalink
    list_price
    status
    list_date
    description { text sqft beds baths year_built }
    details { category parent_category text }
    location { address { line city state_code postal_code } county { name } }
    advertisers {
      name href type
      phones { number type primary }
      broker { name }
      office { name phones { number type primary } }
    }
    source {
      agents { agent_id agent_name agent_phone office_id office_name office_phone }
    }
  }
}`

// SearchQuery describes one partition of a bulk search. County takes
// precedence over Location; with neither set the search is state-wide.
type SearchQuery struct {
	StateCode string
	County    string
	Location  string

	// DateFloor limits results to listings listed on or after this date.
	// Zero means no date filter.
	DateFloor time.Time

	Limit  int
	Offset int
}

// Client issues search and detail requests against the listing source.
// A shared token-bucket limiter paces every outgoing request.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *utils.Logger
}

// New creates a Client for the given base URL. rps <= 0 disables pacing.
func New(baseURL string, rps float64, logger *utils.Logger) *Client {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		logger:  logger,
	}
}

// ListingURL derives the stable listing URL from a search permalink.
func (c *Client) ListingURL(permalink string) string {
	return c.baseURL + detailPath + permalink
}

// Search runs one ConsumerSearchQuery call and maps the results to
// Candidates. Transport failures, non-2xx responses, GraphQL errors and
// malformed payloads all return an error; an empty slice with a nil error is
// a legitimate no-results answer. There is no retry.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]models.Candidate, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	criteria := searchCriteria{
		Primary: true,
		Status:  []string{"for_sale", "ready_to_build"},
	}
	switch {
	case q.County != "":
		criteria.SearchLocation = &searchLocation{
			Location: fmt.Sprintf("%s County, %s", q.County, q.StateCode),
		}
	case q.Location != "":
		criteria.SearchLocation = &searchLocation{Location: q.Location}
	default:
		criteria.StateCode = q.StateCode
	}
	if !q.DateFloor.IsZero() {
		criteria.ListDate = &dateRange{Min: q.DateFloor.Format("2006-01-02")}
	}

	req := graphQLRequest{
		OperationName: "ConsumerSearchQuery",
		Variables: searchVariables{
			Query:  criteria,
			Limit:  limit,
			Offset: q.Offset,
			Sort:   []sortSpec{{Field: "list_date", Direction: "desc"}},
		},
		Query: searchQueryGQL,
	}

	var resp searchResponse
	if err := c.post(ctx, req, searchClientName, searchClientVersion, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("search: graphql error: %s", resp.Errors[0].Message)
	}
	if resp.Data.HomeSearch == nil {
		return nil, fmt.Errorf("search: malformed response: missing home_search")
	}

	results := resp.Data.HomeSearch.Results
	c.logger.Info("[realtor] Search returned %d listings (total available: %d)",
		len(results), resp.Data.HomeSearch.Total)

	candidates := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, candidateFromSearchResult(r))
	}
	return candidates, nil
}

// SearchCounty is the partition entry point the orchestrator uses: one county,
// an optional date floor, and a page limit.
func (c *Client) SearchCounty(ctx context.Context, stateCode, county string, dateFloor time.Time, limit int) ([]models.Candidate, error) {
	return c.Search(ctx, SearchQuery{
		StateCode: stateCode,
		County:    county,
		DateFloor: dateFloor,
		Limit:     limit,
	})
}

// FetchDetails retrieves the full detail record for one property. A nil
// record with a nil error means the source has no detail for this ID. Single
// attempt, no retry: the caller proceeds with candidate-level data on any
// failure.
func (c *Client) FetchDetails(ctx context.Context, base models.Candidate) (*models.EnrichedRecord, error) {
	req := graphQLRequest{
		OperationName: "FullPropertyDetails",
		Variables:     detailVariables{PropertyID: base.PropertyID},
		Query:         detailQueryGQL,
	}

	var resp detailResponse
	if err := c.post(ctx, req, detailsClientName, detailsClientVersion, &resp); err != nil {
		return nil, fmt.Errorf("property details %s: %w", base.PropertyID, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("property details %s: graphql error: %s",
			base.PropertyID, resp.Errors[0].Message)
	}
	if resp.Data.Home == nil {
		return nil, nil
	}

	return enrichedFromHome(resp.Data.Home, base), nil
}

func (c *Client) post(ctx context.Context, body graphQLRequest, clientName, clientVersion string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+graphqlPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("rdc-client-name", clientName)
	req.Header.Set("rdc-client-version", clientVersion)
	req.Header.Set("x-is-bot", "false")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
