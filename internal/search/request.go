package search

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SearchRequest is the normalized query, regardless of how it arrived
// (GET params, POST body, or a direct Lambda invocation).
type SearchRequest struct {
	Query           string   `json:"q"`
	SortBy          string   `json:"sort"`
	Order           string   `json:"order"`
	EpisodeIDs      []string `json:"episodeIds"`
	Limit           int      `json:"limit"`
	Offset          int      `json:"offset"`
	HealthCheckOnly bool     `json:"healthCheckOnly"`
}

// Validate rejects values the engine cannot normalize away.
func (r *SearchRequest) Validate() error {
	switch r.SortBy {
	case "", SortByRelevance, SortByPublished:
	default:
		return fmt.Errorf("unsupported sort field %q", r.SortBy)
	}
	switch strings.ToLower(r.Order) {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("unsupported order %q", r.Order)
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if r.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// FromQueryParams builds a request from GET parameters. episodeIds is a
// comma-separated list; blank segments are dropped.
func FromQueryParams(values url.Values) (SearchRequest, error) {
	req := SearchRequest{
		Query:  values.Get("q"),
		SortBy: values.Get("sort"),
		Order:  values.Get("order"),
	}
	if ids := values.Get("episodeIds"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.EpisodeIDs = append(req.EpisodeIDs, id)
			}
		}
	}

	var err error
	if req.Limit, err = intParam(values, "limit"); err != nil {
		return req, err
	}
	if req.Offset, err = intParam(values, "offset"); err != nil {
		return req, err
	}
	if hc := values.Get("healthCheckOnly"); hc != "" {
		req.HealthCheckOnly, err = strconv.ParseBool(hc)
		if err != nil {
			return req, fmt.Errorf("invalid healthCheckOnly value %q", hc)
		}
	}
	return req, req.Validate()
}

func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", name, raw)
	}
	return n, nil
}

// FromJSON builds a request from a POST body.
func FromJSON(body []byte) (SearchRequest, error) {
	var req SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, req.Validate()
}

// invokeEnvelope is the shape of an API-gateway style Lambda event. Direct
// invocations send the SearchRequest fields at the top level instead.
type invokeEnvelope struct {
	QueryStringParameters map[string]string `json:"queryStringParameters"`
	Body                  string            `json:"body"`
}

// FromInvokePayload accepts either a proxy-event envelope or a bare request
// object, so the same function serves both the HTTP route and direct invokes.
func FromInvokePayload(payload []byte) (SearchRequest, error) {
	var env invokeEnvelope
	if err := json.Unmarshal(payload, &env); err == nil {
		if len(env.QueryStringParameters) > 0 {
			values := url.Values{}
			for k, v := range env.QueryStringParameters {
				values.Set(k, v)
			}
			return FromQueryParams(values)
		}
		if env.Body != "" {
			return FromJSON([]byte(env.Body))
		}
	}
	return FromJSON(payload)
}
