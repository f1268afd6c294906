package trafficapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaError reports a response that decoded as JSON but does not have the
// shape of the expected entity.
type SchemaError struct {
	Resource string
	Field    string
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema %s: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("schema %s.%s: %s", e.Resource, e.Field, e.Reason)
}

// IsSchemaError reports whether err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// timestampLayouts covers what the backend emits: RFC 3339 from the API and
// zone-less isoformat() strings from the MQTT ingest path (read as UTC).
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// wireReading is the JSON form of a reading on the way in and out.
type wireReading struct {
	ID             string  `json:"_id,omitempty"`
	Location       string  `json:"location"`
	VehicleCount   int     `json:"vehicle_count"`
	Status         string  `json:"status"`
	Timestamp      string  `json:"timestamp,omitempty"`
	CarCount       *int    `json:"car_count,omitempty"`
	MotorbikeCount *int    `json:"motorbike_count,omitempty"`
	Lane1In        *int    `json:"lane1_in,omitempty"`
	Lane1Out       *int    `json:"lane1_out,omitempty"`
	Lane2In        *int    `json:"lane2_in,omitempty"`
	Lane2Out       *int    `json:"lane2_out,omitempty"`
	Image          *string `json:"image,omitempty"`
}

func toWire(r TrafficReading) wireReading {
	w := wireReading{
		ID:             r.ID,
		Location:       r.Location,
		VehicleCount:   r.VehicleCount,
		Status:         string(r.Status),
		CarCount:       r.CarCount,
		MotorbikeCount: r.MotorbikeCount,
		Lane1In:        r.Lane1In,
		Lane1Out:       r.Lane1Out,
		Lane2In:        r.Lane2In,
		Lane2Out:       r.Lane2Out,
		Image:          r.Image,
	}
	if !r.Timestamp.IsZero() {
		w.Timestamp = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return w
}

func (w wireReading) toReading() (TrafficReading, error) {
	const res = "traffic"

	if strings.TrimSpace(w.ID) == "" {
		return TrafficReading{}, &SchemaError{Resource: res, Field: "_id", Reason: "missing"}
	}

	counters := []struct {
		name string
		v    *int
	}{
		{"vehicle_count", &w.VehicleCount},
		{"car_count", w.CarCount},
		{"motorbike_count", w.MotorbikeCount},
		{"lane1_in", w.Lane1In},
		{"lane1_out", w.Lane1Out},
		{"lane2_in", w.Lane2In},
		{"lane2_out", w.Lane2Out},
	}
	for _, c := range counters {
		if c.v != nil && *c.v < 0 {
			return TrafficReading{}, &SchemaError{Resource: res, Field: c.name, Reason: fmt.Sprintf("negative value %d", *c.v)}
		}
	}

	if w.Timestamp == "" {
		return TrafficReading{}, &SchemaError{Resource: res, Field: "timestamp", Reason: "missing"}
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return TrafficReading{}, &SchemaError{Resource: res, Field: "timestamp", Reason: err.Error()}
	}

	image := w.Image
	if image != nil {
		if *image == "" {
			image = nil
		} else if _, err := base64.StdEncoding.DecodeString(*image); err != nil {
			return TrafficReading{}, &SchemaError{Resource: res, Field: "image", Reason: "not base64"}
		}
	}

	return TrafficReading{
		ID:             w.ID,
		Location:       w.Location,
		VehicleCount:   w.VehicleCount,
		Status:         NormalizeStatus(w.Status),
		Timestamp:      ts,
		CarCount:       w.CarCount,
		MotorbikeCount: w.MotorbikeCount,
		Lane1In:        w.Lane1In,
		Lane1Out:       w.Lane1Out,
		Lane2In:        w.Lane2In,
		Lane2Out:       w.Lane2Out,
		Image:          image,
	}, nil
}

func decodeReading(raw json.RawMessage) (TrafficReading, error) {
	var w wireReading
	if err := json.Unmarshal(raw, &w); err != nil {
		return TrafficReading{}, &SchemaError{Resource: "traffic", Reason: err.Error()}
	}
	return w.toReading()
}

func decodeReadings(raw json.RawMessage) ([]TrafficReading, error) {
	var ws []wireReading
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, &SchemaError{Resource: "traffic", Reason: err.Error()}
	}
	if ws == nil {
		return nil, &SchemaError{Resource: "traffic", Reason: "expected a list, got null"}
	}

	out := make([]TrafficReading, 0, len(ws))
	for i, w := range ws {
		r, err := w.toReading()
		if err != nil {
			return nil, fmt.Errorf("reading[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeHealth(raw json.RawMessage) (HealthStatus, error) {
	var h *HealthStatus
	if err := json.Unmarshal(raw, &h); err != nil {
		return HealthStatus{}, &SchemaError{Resource: "health", Reason: err.Error()}
	}
	if h == nil {
		return HealthStatus{}, &SchemaError{Resource: "health", Reason: "empty body"}
	}
	if h.Status == "" {
		return HealthStatus{}, &SchemaError{Resource: "health", Field: "status", Reason: "missing"}
	}
	return *h, nil
}

func decodeUser(raw json.RawMessage) (User, error) {
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, &SchemaError{Resource: "user", Reason: err.Error()}
	}
	if strings.TrimSpace(u.ID) == "" {
		return User{}, &SchemaError{Resource: "user", Field: "_id", Reason: "missing"}
	}
	return u, nil
}

func decodeUsers(raw json.RawMessage) ([]User, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, &SchemaError{Resource: "user", Reason: err.Error()}
	}
	if raws == nil {
		return nil, &SchemaError{Resource: "user", Reason: "expected a list, got null"}
	}

	out := make([]User, 0, len(raws))
	for i, r := range raws {
		u, err := decodeUser(r)
		if err != nil {
			return nil, fmt.Errorf("user[%d]: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func decodeAck(resource string, raw json.RawMessage) (Ack, error) {
	var a *Ack
	if err := json.Unmarshal(raw, &a); err != nil {
		return Ack{}, &SchemaError{Resource: resource, Reason: err.Error()}
	}
	if a == nil {
		return Ack{}, nil
	}
	return *a, nil
}
