// Package catalog is a client of the catalog/search service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/opst/gbdxkit/pkg/api/rest"
	"github.com/opst/gbdxkit/pkg/auth"
)

const dateFormat = "2006-01-02T15:04:05.000Z"

// Query is a search request.
//
// Filters are expressions like "cloudCover < 10", or "vendorDatasetIdentifier3 = 'CATID'".
type Query struct {
	SearchAreaWKT string
	StartDate     time.Time
	EndDate       time.Time
	Filters       []string
	Types         []string
}

func (q Query) MarshalJSON() ([]byte, error) {
	body := struct {
		SearchAreaWKT *string  `json:"searchAreaWkt,omitempty"`
		StartDate     *string  `json:"startDate,omitempty"`
		EndDate       *string  `json:"endDate,omitempty"`
		Filters       []string `json:"filters"`
		Types         []string `json:"types"`
	}{
		Filters: q.Filters,
		Types:   q.Types,
	}
	if body.Filters == nil {
		body.Filters = []string{}
	}
	if body.Types == nil {
		body.Types = []string{}
	}
	if q.SearchAreaWKT != "" {
		body.SearchAreaWKT = &q.SearchAreaWKT
	}
	if !q.StartDate.IsZero() {
		s := q.StartDate.UTC().Format(dateFormat)
		body.StartDate = &s
	}
	if !q.EndDate.IsZero() {
		s := q.EndDate.UTC().Format(dateFormat)
		body.EndDate = &s
	}
	return json.Marshal(body)
}

type searchResult struct {
	Results []Record `json:"results"`
}

type Client struct {
	rest   *rest.Client
	logger *log.Logger
}

type Option func(*Client) *Client

func WithLogger(l *log.Logger) Option {
	return func(c *Client) *Client {
		c.logger = l
		return c
	}
}

// New creates a catalog client on the session.
func New(sess *auth.Session, options ...Option) *Client {
	return NewWithHTTPClient(sess.Profile().ApiRoot, sess.Client(), options...)
}

// NewWithHTTPClient creates a catalog client for the API root.
func NewWithHTTPClient(apiRoot string, hc *http.Client, options ...Option) *Client {
	c := &Client{rest: rest.New(apiRoot, hc), logger: log.Default()}
	for _, o := range options {
		c = o(c)
	}
	return c
}

// Search finds records matching the query.
func (c *Client) Search(ctx context.Context, q Query) ([]Record, error) {
	resp, err := c.rest.Do(ctx, http.MethodPost, c.rest.URL("catalog/v2/search"), q)
	if err != nil {
		return nil, err
	}
	result := searchResult{}
	if err := rest.UnmarshalJSON(resp, &result, rest.MessageFor{
		rest.Status4xx: "catalog search is rejected",
		rest.Status5xx: "catalog service is in trouble",
	}); err != nil {
		return nil, err
	}
	c.logger.Printf("catalog: %d records found", len(result.Results))
	return result.Results, nil
}

// Get fetches a record by its identifier.
func (c *Client) Get(ctx context.Context, id string) (Record, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, c.rest.URL("catalog/v2/record", id), nil)
	if err != nil {
		return Record{}, err
	}
	rec := Record{}
	if err := rest.UnmarshalJSON(resp, &rec, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("catalog record %s is not found", id),
		rest.Status5xx: "catalog service is in trouble",
	}); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// StripFootprint returns the footprint WKT of the strip with the catalog id.
//
// An empty string is returned when the strip has no footprint.
func (c *Client) StripFootprint(ctx context.Context, catalogID string) (string, error) {
	rec, err := c.Get(ctx, catalogID)
	if err != nil {
		return "", err
	}
	s, _ := rec.Property(PropFootprintWKT)
	return s, nil
}
