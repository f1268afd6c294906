package trafficapi

import "time"

// Status is the congestion level reported by a sensor.
type Status string

const (
	StatusLight    Status = "light"
	StatusModerate Status = "moderate"
	StatusHeavy    Status = "heavy"
	StatusUnknown  Status = "unknown"
)

// NormalizeStatus maps anything outside the known levels to StatusUnknown.
func NormalizeStatus(s string) Status {
	switch Status(s) {
	case StatusLight, StatusModerate, StatusHeavy:
		return Status(s)
	}
	return StatusUnknown
}

// TrafficReading is one sensor observation. Readings are immutable once
// fetched; a newer fetch supersedes the whole list.
type TrafficReading struct {
	ID           string    `json:"_id"`
	Location     string    `json:"location"`
	VehicleCount int       `json:"vehicle_count"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`

	// Optional breakdowns; nil when the sensor did not report them.
	CarCount       *int `json:"car_count,omitempty"`
	MotorbikeCount *int `json:"motorbike_count,omitempty"`
	Lane1In        *int `json:"lane1_in,omitempty"`
	Lane1Out       *int `json:"lane1_out,omitempty"`
	Lane2In        *int `json:"lane2_in,omitempty"`
	Lane2Out       *int `json:"lane2_out,omitempty"`

	// Image is a base64-encoded JPEG, nil when the reading has no snapshot.
	Image *string `json:"image,omitempty"`
}

// HasImage reports whether the reading carries a non-empty image.
func (r TrafficReading) HasImage() bool {
	return r.Image != nil && *r.Image != ""
}

// HealthStatus is a single liveness answer from the backend.
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type Personal struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type User struct {
	ID       string   `json:"_id"`
	Personal Personal `json:"personal"`
}

// TrafficFilter narrows GET /traffic. Empty fields are not sent.
type TrafficFilter struct {
	Location string
	Status   Status
}

// CreateTrafficResult is the backend's answer to POST /traffic.
type CreateTrafficResult struct {
	Message  string         `json:"message"`
	Data     TrafficReading `json:"data"`
	HasImage bool           `json:"has_image"`
}

// Ack is the generic acknowledgement for create/update/delete calls.
type Ack struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
