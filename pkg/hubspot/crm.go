package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// associationsPage is one page of the v4 associations listing.
type associationsPage struct {
	Results []Association `json:"results"`
	Paging  *struct {
		Next *struct {
			Link  string `json:"link"`
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// batchReadRequest is the v3 batch read payload.
type batchReadRequest struct {
	Inputs     []batchReadInput `json:"inputs"`
	Properties []string         `json:"properties"`
}

type batchReadInput struct {
	ID string `json:"id"`
}

type batchReadResponse struct {
	Results []Record `json:"results"`
}

func (c *httpClient) GetRecord(ctx context.Context, objectType, objectID string, properties []string) (*Record, error) {
	url := fmt.Sprintf("%s/crm/v3/objects/%s/%s?properties=%s",
		c.baseURL, objectType, objectID, strings.Join(properties, ","))

	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: get %s %s", objectType, objectID))
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: decode %s %s", objectType, objectID))
	}
	return &rec, nil
}

func (c *httpClient) ListAssociations(ctx context.Context, dealID, toObjectType string) ([]Association, error) {
	url := fmt.Sprintf("%s/crm/v4/objects/deals/%s/associations/%s", c.baseURL, dealID, toObjectType)

	var all []Association
	for url != "" {
		body, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("hubspot: list deal %s associations to %s", dealID, toObjectType))
		}

		var page associationsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("hubspot: decode associations to %s", toObjectType))
		}
		all = append(all, page.Results...)

		url = ""
		if page.Paging != nil && page.Paging.Next != nil {
			url = page.Paging.Next.Link
		}
	}
	return all, nil
}

func (c *httpClient) BatchRead(ctx context.Context, objectType string, objectIDs []string, properties []string) ([]Record, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}

	req := batchReadRequest{
		Inputs:     make([]batchReadInput, len(objectIDs)),
		Properties: properties,
	}
	for i, id := range objectIDs {
		req.Inputs[i] = batchReadInput{ID: id}
	}

	url := fmt.Sprintf("%s/crm/v3/objects/%s/batch/read", c.baseURL, objectType)
	body, err := c.do(ctx, http.MethodPost, url, req)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: batch read %s", objectType))
	}

	var resp batchReadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: decode batch read %s", objectType))
	}
	return resp.Results, nil
}
