package trafficapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

const (
	pathHealth  = "/health"
	pathUsers   = "/users"
	pathTraffic = "/traffic"
)

// Requester is the transport contract the client builds on.
type Requester interface {
	Do(ctx context.Context, method, url string, body any) (json.RawMessage, error)
}

// Client is the typed accessor for the traffic backend. It only builds URLs,
// picks method and body, and checks the decoded shape. Transport errors are
// returned unchanged.
type Client struct {
	baseURL string
	rq      Requester
}

func NewClient(baseURL string, rq Requester) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), rq: rq}
}

func (c *Client) url(path string, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(path)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// TrafficQuery encodes a filter as the query string of GET /traffic.
func TrafficQuery(f TrafficFilter) url.Values {
	q := url.Values{}
	if f.Location != "" {
		q.Set("location", f.Location)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	return q
}

// ===== health =====

func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	raw, err := c.rq.Do(ctx, http.MethodGet, c.url(pathHealth), nil)
	if err != nil {
		return HealthStatus{}, err
	}
	return decodeHealth(raw)
}

// ===== traffic =====

// ListTraffic returns readings in server order (most recent first).
func (c *Client) ListTraffic(ctx context.Context, f TrafficFilter) ([]TrafficReading, error) {
	u := c.url(pathTraffic)
	if q := TrafficQuery(f); len(q) > 0 {
		u += "?" + q.Encode()
	}

	raw, err := c.rq.Do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return decodeReadings(raw)
}

func (c *Client) TrafficByLocation(ctx context.Context, location string) ([]TrafficReading, error) {
	return c.ListTraffic(ctx, TrafficFilter{Location: location})
}

func (c *Client) TrafficByStatus(ctx context.Context, status Status) ([]TrafficReading, error) {
	return c.ListTraffic(ctx, TrafficFilter{Status: status})
}

func (c *Client) GetTraffic(ctx context.Context, id string) (TrafficReading, error) {
	raw, err := c.rq.Do(ctx, http.MethodGet, c.url(pathTraffic, id), nil)
	if err != nil {
		return TrafficReading{}, err
	}
	return decodeReading(raw)
}

func (c *Client) CreateTraffic(ctx context.Context, r TrafficReading) (CreateTrafficResult, error) {
	raw, err := c.rq.Do(ctx, http.MethodPost, c.url(pathTraffic), toWire(r))
	if err != nil {
		return CreateTrafficResult{}, err
	}

	var env struct {
		Message  string          `json:"message"`
		Data     json.RawMessage `json:"data"`
		HasImage bool            `json:"has_image"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return CreateTrafficResult{}, &SchemaError{Resource: "traffic", Reason: err.Error()}
	}
	if len(env.Data) == 0 {
		return CreateTrafficResult{}, &SchemaError{Resource: "traffic", Field: "data", Reason: "missing"}
	}
	created, err := decodeReading(env.Data)
	if err != nil {
		return CreateTrafficResult{}, err
	}

	return CreateTrafficResult{Message: env.Message, Data: created, HasImage: env.HasImage}, nil
}

// UpdateTraffic sends a partial reading; only the keys present in patch change.
func (c *Client) UpdateTraffic(ctx context.Context, id string, patch map[string]any) (Ack, error) {
	raw, err := c.rq.Do(ctx, http.MethodPut, c.url(pathTraffic, id), patch)
	if err != nil {
		return Ack{}, err
	}
	return decodeAck("traffic", raw)
}

func (c *Client) DeleteTraffic(ctx context.Context, id string) (Ack, error) {
	raw, err := c.rq.Do(ctx, http.MethodDelete, c.url(pathTraffic, id), nil)
	if err != nil {
		return Ack{}, err
	}
	return decodeAck("traffic", raw)
}

// ===== users =====

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	raw, err := c.rq.Do(ctx, http.MethodGet, c.url(pathUsers), nil)
	if err != nil {
		return nil, err
	}
	return decodeUsers(raw)
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	raw, err := c.rq.Do(ctx, http.MethodGet, c.url(pathUsers, id), nil)
	if err != nil {
		return User{}, err
	}
	return decodeUser(raw)
}

func (c *Client) CreateUser(ctx context.Context, u User) (Ack, error) {
	raw, err := c.rq.Do(ctx, http.MethodPost, c.url(pathUsers), u)
	if err != nil {
		return Ack{}, err
	}
	return decodeAck("user", raw)
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch map[string]any) (Ack, error) {
	raw, err := c.rq.Do(ctx, http.MethodPut, c.url(pathUsers, id), patch)
	if err != nil {
		return Ack{}, err
	}
	return decodeAck("user", raw)
}

func (c *Client) DeleteUser(ctx context.Context, id string) (Ack, error) {
	raw, err := c.rq.Do(ctx, http.MethodDelete, c.url(pathUsers, id), nil)
	if err != nil {
		return Ack{}, err
	}
	return decodeAck("user", raw)
}
