package dashboard

import (
	"math"
	"time"

	"autoeye-traffic-dashboard/internal/trafficapi"
)

// Vehicle-type split used when a sensor reports only a total. Presentation
// only; never written back to a reading.
const (
	estimatedCarShare       = 0.68
	estimatedMotorbikeShare = 0.32
)

// Stats is the headline card for one reading.
type Stats struct {
	ReadingID     string            `json:"reading_id,omitempty"`
	TotalVehicles int               `json:"total_vehicles"`
	Cars          int               `json:"cars"`
	Motorbikes    int               `json:"motorbikes"`
	Estimated     bool              `json:"estimated"`
	Inbound       int               `json:"inbound"`
	Outbound      int               `json:"outbound"`
	Lane2In       int               `json:"lane2_in"`
	Lane2Out      int               `json:"lane2_out"`
	Status        trafficapi.Status `json:"status"`
	Location      string            `json:"location"`
	LastUpdate    time.Time         `json:"last_update"`
}

// CurrentStats derives the card for r, or the placeholder card when r is nil.
func CurrentStats(r *trafficapi.TrafficReading) Stats {
	if r == nil {
		return Stats{
			Status:   trafficapi.StatusUnknown,
			Location: "No data",
		}
	}

	s := Stats{
		ReadingID:     r.ID,
		TotalVehicles: r.VehicleCount,
		Inbound:       orZero(r.Lane1In),
		Outbound:      orZero(r.Lane1Out),
		Lane2In:       orZero(r.Lane2In),
		Lane2Out:      orZero(r.Lane2Out),
		Status:        r.Status,
		Location:      r.Location,
		LastUpdate:    r.Timestamp,
	}

	if r.CarCount != nil {
		s.Cars = *r.CarCount
	} else {
		s.Cars = estimate(r.VehicleCount, estimatedCarShare)
		s.Estimated = true
	}
	if r.MotorbikeCount != nil {
		s.Motorbikes = *r.MotorbikeCount
	} else {
		s.Motorbikes = estimate(r.VehicleCount, estimatedMotorbikeShare)
		s.Estimated = true
	}

	return s
}

// History maps every reading to its card, keeping server order.
func History(rs []trafficapi.TrafficReading) []Stats {
	out := make([]Stats, 0, len(rs))
	for i := range rs {
		out = append(out, CurrentStats(&rs[i]))
	}
	return out
}

func estimate(total int, share float64) int {
	return int(math.Floor(float64(total) * share))
}

func orZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
