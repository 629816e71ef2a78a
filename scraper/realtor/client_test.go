package realtor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"realtor-scraper/models"
	"realtor-scraper/utils"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, 0, utils.NewLogger()), server
}

func decodeRequest(t *testing.T, r *http.Request) graphQLRequest {
	t.Helper()
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return req
}

func TestSearchBuildsCountyQuery(t *testing.T) {
	var captured struct {
		path       string
		clientName string
		variables  map[string]any
	}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.clientName = r.Header.Get("rdc-client-name")

		req := decodeRequest(t, r)
		raw, _ := json.Marshal(req.Variables)
		json.Unmarshal(raw, &captured.variables)

		w.Write([]byte(`{"data":{"home_search":{"total":0,"results":[]}}}`))
	})

	dateFloor := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	got, err := client.SearchCounty(context.Background(), "WI", "Kenosha", dateFloor, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}

	if captured.path != graphqlPath {
		t.Errorf("path: got %q, want %q", captured.path, graphqlPath)
	}
	if captured.clientName != searchClientName {
		t.Errorf("rdc-client-name: got %q, want %q", captured.clientName, searchClientName)
	}

	query := captured.variables["query"].(map[string]any)
	loc := query["search_location"].(map[string]any)
	if loc["location"] != "Kenosha County, WI" {
		t.Errorf("search_location: got %v", loc["location"])
	}
	listDate := query["list_date"].(map[string]any)
	if listDate["min"] != "2026-08-24" {
		t.Errorf("list_date.min: got %v", listDate["min"])
	}
	if _, ok := query["state_code"]; ok {
		t.Error("state_code must be omitted when a county location is set")
	}
}

func TestSearchStateWideWithoutCounty(t *testing.T) {
	var variables map[string]any

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		raw, _ := json.Marshal(req.Variables)
		json.Unmarshal(raw, &variables)
		w.Write([]byte(`{"data":{"home_search":{"total":0,"results":[]}}}`))
	})

	if _, err := client.SearchCounty(context.Background(), "WI", "", time.Time{}, 200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	query := variables["query"].(map[string]any)
	if query["state_code"] != "WI" {
		t.Errorf("state_code: got %v", query["state_code"])
	}
	if _, ok := query["search_location"]; ok {
		t.Error("search_location must be omitted for a state-wide search")
	}
	if _, ok := query["list_date"]; ok {
		t.Error("list_date must be omitted without a date floor")
	}
}

func TestSearchClampsLimit(t *testing.T) {
	var variables map[string]any

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		raw, _ := json.Marshal(req.Variables)
		json.Unmarshal(raw, &variables)
		w.Write([]byte(`{"data":{"home_search":{"total":0,"results":[]}}}`))
	})

	if _, err := client.SearchCounty(context.Background(), "WI", "Kenosha", time.Time{}, 5000); err != nil {
		t.Fatal(err)
	}
	if got := variables["limit"].(float64); got != maxPageSize {
		t.Errorf("limit: got %v, want %d", got, maxPageSize)
	}
}

func TestSearchMapsResults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"home_search":{"total":1,"results":[{
			"property_id":"P123",
			"listing_id":"L456",
			"permalink":"10-Rural-Rd_Bristol_WI_53104_M12345-67890",
			"list_price":350000,
			"list_date":"2026-08-24T12:00:00Z",
			"location":{
				"address":{"line":"10 Rural Rd","city":"Bristol","state_code":"WI","postal_code":"53104"},
				"county":{"name":"Kenosha"}
			},
			"description":{"sqft":1800,"beds":3,"baths":2},
			"advertisers":[{"name":"Jane Smith","href":"https://www.realtor.com/realestateagents/jane",
				"phones":[{"number":"(262) 555-0100","type":"office","primary":true}]}]
		}]}}}`))
	})

	got, err := client.SearchCounty(context.Background(), "WI", "Kenosha", time.Time{}, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	c := got[0]
	if c.PropertyID != "P123" || c.ListingID != "L456" {
		t.Errorf("ids: %+v", c)
	}
	if c.Address != "10 Rural Rd" || c.City != "Bristol" || c.County != "Kenosha" || c.PostalCode != "53104" {
		t.Errorf("address fields: %+v", c)
	}
	if c.Price != 350000 || c.Beds != 3 || c.Baths != 2 || c.Sqft != 1800 {
		t.Errorf("numeric fields: %+v", c)
	}
	if c.AgentName != "Jane Smith" || c.AgentPhone != "2625550100" {
		t.Errorf("agent fields: %+v", c)
	}
}

func TestSearchNonOKStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	if _, err := client.SearchCounty(context.Background(), "WI", "Kenosha", time.Time{}, 200); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestSearchGraphQLError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{},"errors":[{"message":"rate limited"}]}`))
	})

	_, err := client.SearchCounty(context.Background(), "WI", "Kenosha", time.Time{}, 200)
	if err == nil {
		t.Fatal("expected error for GraphQL error payload")
	}
}

func TestSearchMissingHomeSearchIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})

	if _, err := client.SearchCounty(context.Background(), "WI", "Kenosha", time.Time{}, 200); err == nil {
		t.Fatal("a response without home_search must be an error, not an empty result")
	}
}

func TestFetchDetailsMergesOverCandidate(t *testing.T) {
	var clientName string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		clientName = r.Header.Get("rdc-client-name")
		w.Write([]byte(`{"data":{"home":{
			"property_id":"P123",
			"list_price":340000,
			"description":{"text":"Well water and septic system.","sqft":1900,"beds":4,"baths":2.5},
			"details":[
				{"category":"Utilities","text":["Sewer: Septic","Water: Well"]},
				{"category":"Heating","text":"Forced air"}
			],
			"advertisers":[{"name":"Jane Smith","href":"https://www.realtor.com/realestateagents/jane",
				"phones":[{"number":"262-555-0100","type":"mobile"}],
				"broker":{"name":"Rural Homes LLC"}}]
		}}}`))
	})

	base := models.Candidate{PropertyID: "P123", Price: 350000, Beds: 3, Baths: 2, Sqft: 1800}
	rec, err := client.FetchDetails(context.Background(), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}

	if clientName != detailsClientName {
		t.Errorf("rdc-client-name: got %q, want %q", clientName, detailsClientName)
	}
	if rec.Description != "Well water and septic system." {
		t.Errorf("description: %q", rec.Description)
	}
	if rec.Price != 340000 || rec.Beds != 4 || rec.Baths != 2.5 || rec.Sqft != 1900 {
		t.Errorf("detail values must win over candidate values: %+v", rec)
	}
	if rec.BrokerageName != "Rural Homes LLC" {
		t.Errorf("brokerage: %q", rec.BrokerageName)
	}

	// The string-or-array detail text shapes both decode.
	if len(rec.Details) != 2 {
		t.Fatalf("details: got %d blocks", len(rec.Details))
	}
	if len(rec.Details[0].Text) != 2 || rec.Details[0].Text[0] != "Sewer: Septic" {
		t.Errorf("array text: %+v", rec.Details[0])
	}
	if len(rec.Details[1].Text) != 1 || rec.Details[1].Text[0] != "Forced air" {
		t.Errorf("string text: %+v", rec.Details[1])
	}
}

func TestFetchDetailsAbsentHome(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"home":null}}`))
	})

	rec, err := client.FetchDetails(context.Background(), models.Candidate{PropertyID: "P404"})
	if err != nil {
		t.Fatalf("absent detail must not be an error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestListingURL(t *testing.T) {
	c := New("https://www.realtor.com", 0, utils.NewLogger())
	got := c.ListingURL("10-Rural-Rd_Bristol_WI_53104_M12345-67890")
	want := "https://www.realtor.com/realestateandhomes-detail/10-Rural-Rd_Bristol_WI_53104_M12345-67890"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
