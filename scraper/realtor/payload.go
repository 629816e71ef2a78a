package realtor

import (
	"encoding/json"
	"regexp"

	"realtor-scraper/models"
)

// graphQLRequest is the envelope for every upstream call.
type graphQLRequest struct {
	OperationName string `json:"operationName"`
	Variables     any    `json:"variables"`
	Query         string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// ───────── Search payloads ─────────

type searchVariables struct {
	Query  searchCriteria `json:"query"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Sort   []sortSpec     `json:"sort"`
}

type searchCriteria struct {
	Primary        bool            `json:"primary"`
	Status         []string        `json:"status"`
	StateCode      string          `json:"state_code,omitempty"`
	SearchLocation *searchLocation `json:"search_location,omitempty"`
	ListDate       *dateRange      `json:"list_date,omitempty"`
}

type searchLocation struct {
	Location string `json:"location"`
}

type dateRange struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

type sortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type searchResponse struct {
	Data struct {
		HomeSearch *struct {
			Total   int            `json:"total"`
			Results []searchResult `json:"results"`
		} `json:"home_search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type searchResult struct {
	PropertyID  string        `json:"property_id"`
	ListingID   string        `json:"listing_id"`
	Permalink   string        `json:"permalink"`
	ListPrice   int64         `json:"list_price"`
	ListDate    string        `json:"list_date"`
	Location    *location     `json:"location"`
	Description *description  `json:"description"`
	Advertisers []advertiser  `json:"advertisers"`
}

type location struct {
	Address *address `json:"address"`
	County  *county  `json:"county"`
}

type address struct {
	Line       string `json:"line"`
	City       string `json:"city"`
	StateCode  string `json:"state_code"`
	PostalCode string `json:"postal_code"`
}

type county struct {
	Name string `json:"name"`
}

type description struct {
	Text      string  `json:"text"`
	Sqft      int64   `json:"sqft"`
	Beds      int     `json:"beds"`
	Baths     float64 `json:"baths"`
	YearBuilt int     `json:"year_built"`
}

type advertiser struct {
	Name   string  `json:"name"`
	Href   string  `json:"href"`
	Type   string  `json:"type"`
	Phones []phone `json:"phones"`
	Broker *broker `json:"broker"`
	Office *office `json:"office"`
}

type phone struct {
	Number  string `json:"number"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

type broker struct {
	Name string `json:"name"`
}

type office struct {
	Name   string  `json:"name"`
	Phones []phone `json:"phones"`
}

// ───────── Detail payloads ─────────

type detailVariables struct {
	PropertyID string `json:"propertyId"`
}

type detailResponse struct {
	Data struct {
		Home *homePayload `json:"home"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type homePayload struct {
	PropertyID  string        `json:"property_id"`
	ListingID   string        `json:"listing_id"`
	Permalink   string        `json:"permalink"`
	ListPrice   int64         `json:"list_price"`
	Status      string        `json:"status"`
	ListDate    string        `json:"list_date"`
	Description *description  `json:"description"`
	Details     []detailBlock `json:"details"`
	Location    *location     `json:"location"`
	Advertisers []advertiser  `json:"advertisers"`
	Source      *source       `json:"source"`
}

type detailBlock struct {
	Category       string   `json:"category"`
	ParentCategory string   `json:"parent_category"`
	Text           textList `json:"text"`
}

type source struct {
	Agents []sourceAgent `json:"agents"`
}

type sourceAgent struct {
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	AgentPhone  string `json:"agent_phone"`
	OfficeID    string `json:"office_id"`
	OfficeName  string `json:"office_name"`
	OfficePhone string `json:"office_phone"`
}

// textList accepts both a bare string and an array of strings; the upstream
// schema is inconsistent about which it returns for detail text.
type textList []string

func (t *textList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*t = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*t = []string{one}
	return nil
}

// ───────── Mapping to typed records ─────────

// candidateFromSearchResult maps one raw search result into a Candidate.
// All payload traversal happens here so nothing downstream touches raw JSON.
func candidateFromSearchResult(r searchResult) models.Candidate {
	c := models.Candidate{
		PropertyID: r.PropertyID,
		ListingID:  r.ListingID,
		Permalink:  r.Permalink,
		Price:      r.ListPrice,
		ListDate:   r.ListDate,
	}

	if r.Location != nil && r.Location.Address != nil {
		addr := r.Location.Address
		c.Address = addr.Line
		c.City = addr.City
		c.StateCode = addr.StateCode
		c.PostalCode = addr.PostalCode
	}
	if r.Location != nil && r.Location.County != nil {
		c.County = r.Location.County.Name
	}

	if r.Description != nil {
		c.Beds = r.Description.Beds
		c.Baths = r.Description.Baths
		c.Sqft = r.Description.Sqft
	}

	if len(r.Advertisers) > 0 {
		agent := r.Advertisers[0]
		c.AgentName = agent.Name
		c.AgentURL = agent.Href
		c.AgentPhone = normalizePhone(pickPhone(agent.Phones))
	}

	return c
}

// enrichedFromHome merges the full detail payload over the search-stage
// candidate, preferring detail data where present.
func enrichedFromHome(h *homePayload, base models.Candidate) *models.EnrichedRecord {
	rec := &models.EnrichedRecord{Candidate: base}

	if h.Description != nil {
		rec.Description = h.Description.Text
		if h.Description.Beds > 0 {
			rec.Beds = h.Description.Beds
		}
		if h.Description.Baths > 0 {
			rec.Baths = h.Description.Baths
		}
		if h.Description.Sqft > 0 {
			rec.Sqft = h.Description.Sqft
		}
	}
	if h.ListPrice > 0 {
		rec.Price = h.ListPrice
	}

	rec.Details = make([]models.DetailEntry, 0, len(h.Details))
	for _, d := range h.Details {
		rec.Details = append(rec.Details, models.DetailEntry{
			Category:       d.Category,
			ParentCategory: d.ParentCategory,
			Text:           d.Text,
		})
	}

	if h.Location != nil && h.Location.County != nil {
		rec.County = h.Location.County.Name
	}

	if len(h.Advertisers) > 0 {
		agent := h.Advertisers[0]
		if agent.Name != "" {
			rec.AgentName = agent.Name
		}
		if agent.Href != "" {
			rec.AgentURL = agent.Href
		}
		if num := pickPhone(agent.Phones); num != "" {
			rec.AgentPhone = normalizePhone(num)
		}
		if agent.Broker != nil && agent.Broker.Name != "" {
			rec.BrokerageName = agent.Broker.Name
		} else if agent.Office != nil {
			rec.BrokerageName = agent.Office.Name
		}
	}

	// MLS source agents are the fallback when advertisers are incomplete.
	if h.Source != nil && len(h.Source.Agents) > 0 {
		src := h.Source.Agents[0]
		if rec.AgentName == "" {
			rec.AgentName = src.AgentName
		}
		if rec.AgentPhone == "" {
			rec.AgentPhone = normalizePhone(src.AgentPhone)
		}
		if rec.BrokerageName == "" {
			rec.BrokerageName = src.OfficeName
		}
	}

	return rec
}

// pickPhone prefers a primary number, then mobile, then the first listed.
func pickPhone(phones []phone) string {
	for _, p := range phones {
		if p.Primary || p.Type == "mobile" {
			return p.Number
		}
	}
	if len(phones) > 0 {
		return phones[0].Number
	}
	return ""
}

var nonDigits = regexp.MustCompile(`\D`)

// normalizePhone strips formatting and keeps the last 10 digits, which drops
// a leading country code when present.
func normalizePhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}
