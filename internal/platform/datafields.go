package platform

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

// DataField is a platform data field.
type DataField struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	AlphaCount  int    `json:"alphaCount"`
}

// DataField fetches one field by ID.
func (c *Client) DataField(ctx context.Context, id string) (DataField, error) {
	var f DataField
	err := c.getJSON(ctx, c.resolve("/data-fields/"+url.PathEscape(id)), &f)
	return f, err
}

// DataFieldQuery filters a data field search. Empty fields are omitted.
type DataFieldQuery struct {
	InstrumentType string
	Region         string
	Delay          int
	Universe       string
	Type           string
	Search         string
	Limit          int
}

// SearchDataFields returns the first page of matching fields.
func (c *Client) SearchDataFields(ctx context.Context, q DataFieldQuery) ([]DataField, error) {
	params := url.Values{}
	set := func(k, v string) {
		if v != "" {
			params.Set(k, v)
		}
	}
	set("instrumentType", q.InstrumentType)
	set("region", q.Region)
	set("universe", q.Universe)
	set("type", q.Type)
	set("search", q.Search)
	params.Set("delay", strconv.Itoa(q.Delay))
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	params.Set("limit", strconv.Itoa(limit))

	target := c.resolve("/data-fields")
	target.RawQuery = params.Encode()

	var page struct {
		Results []DataField `json:"results"`
	}
	if err := c.getJSON(ctx, target, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// AlphaQuery selects the user's alphas to export.
type AlphaQuery struct {
	Submitted  bool
	Conditions map[string]string
	PageSize   int
}

// ListAlphas pages through the user's alphas, newest first.
func (c *Client) ListAlphas(ctx context.Context, q AlphaQuery) ([]json.RawMessage, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("order", "-dateCreated")
	params.Set("hidden", "false")
	if q.Submitted {
		params.Set("status!", "UNSUBMITTED")
	} else {
		params.Set("status", "UNSUBMITTED")
	}
	for k, v := range q.Conditions {
		params.Set(k, v)
	}

	var alphas []json.RawMessage
	for offset := 0; ; offset += pageSize {
		params.Set("offset", strconv.Itoa(offset))
		target := c.resolve("/users/self/alphas")
		target.RawQuery = params.Encode()

		var page struct {
			Results []json.RawMessage `json:"results"`
			Next    *string           `json:"next"`
		}
		if err := c.getJSON(ctx, target, &page); err != nil {
			return alphas, err
		}
		alphas = append(alphas, page.Results...)
		log.Debug().Int("count", len(alphas)).Msg("Alphas extracted")

		if page.Next == nil || len(page.Results) == 0 {
			return alphas, nil
		}
	}
}
