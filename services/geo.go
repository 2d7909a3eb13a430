package services

import (
	"math"

	"github.com/chopwell/chopwell-api/models"
)

const (
	earthRadiusKm = 6371.0

	// Average rider speed used for the linear ETA heuristic.
	avgSpeedKmh = 25.0

	arrivedThresholdKm = 0.1
	nearbyThresholdKm  = 1.0
)

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// EstimateEtaMinutes converts a distance to a travel-time estimate using a
// flat average speed. Not routing-grade; good enough for dispatch hints.
func EstimateEtaMinutes(distanceKm float64) float64 {
	return distanceKm / avgSpeedKmh * 60
}

// RouteEstimate is a distance/ETA pair for one leg.
type RouteEstimate struct {
	DistanceKm float64 `json:"distance_km"`
	EtaMinutes float64 `json:"eta_minutes"`
}

// EstimateRoute computes the estimate between two coordinates.
func EstimateRoute(fromLat, fromLng, toLat, toLng float64) RouteEstimate {
	d := HaversineKm(fromLat, fromLng, toLat, toLng)
	return RouteEstimate{DistanceKm: d, EtaMinutes: EstimateEtaMinutes(d)}
}

// DeriveTrackingStatus maps remaining distance to a coarse status hint.
func DeriveTrackingStatus(distanceKm float64) string {
	switch {
	case distanceKm < arrivedThresholdKm:
		return models.TrackingArrived
	case distanceKm < nearbyThresholdKm:
		return models.TrackingNearby
	default:
		return models.TrackingOnTheWay
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
