package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chopwell/chopwell-api/services"
	"github.com/chopwell/chopwell-api/utils"
)

type DeliveryController struct {
	deliveries *services.DeliveryService
}

func NewDeliveryController(deliveries *services.DeliveryService) *DeliveryController {
	return &DeliveryController{deliveries: deliveries}
}

// AssignDriver -> attach an eligible driver to an order
func (dc *DeliveryController) AssignDriver(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var req struct {
		DriverID  uint    `json:"driver_id" binding:"required"`
		PickupLat float64 `json:"pickup_lat" binding:"required"`
		PickupLng float64 `json:"pickup_lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := dc.deliveries.Assign(orderID, req.DriverID, req.PickupLat, req.PickupLng, actorID(c))
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Driver assigned", result)
}

// FindAvailableDrivers -> eligible drivers within a radius of a point
func (dc *DeliveryController) FindAvailableDrivers(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("lat and lng are required"))
		return
	}
	radiusKm := 10.0
	if raw := c.Query("radius_km"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			radiusKm = parsed
		}
	}

	drivers, err := dc.deliveries.FindAvailableDrivers(lat, lng, radiusKm)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Available drivers", drivers)
}

// IngestLocation -> driver GPS ping against their active delivery
func (dc *DeliveryController) IngestLocation(c *gin.Context) {
	var req struct {
		Latitude  float64  `json:"latitude" binding:"required"`
		Longitude float64  `json:"longitude" binding:"required"`
		Speed     *float64 `json:"speed"`
		Heading   *float64 `json:"heading"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	row, err := dc.deliveries.IngestLocation(services.LocationPing{
		DriverID:  actorID(c),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Speed:     req.Speed,
		Heading:   req.Heading,
	})
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Location recorded", row)
}

// GetLiveTracking -> latest snapshot plus driver info and route estimate
func (dc *DeliveryController) GetLiveTracking(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	live, err := dc.deliveries.GetLiveTracking(orderID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Live tracking", live)
}

// RegisterVehicle -> one vehicle per driver, unique plate
func (dc *DeliveryController) RegisterVehicle(c *gin.Context) {
	var req struct {
		VehicleType  string `json:"vehicle_type" binding:"required"`
		LicensePlate string `json:"license_plate" binding:"required"`
		Model        string `json:"model"`
		Color        string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	vehicle, err := dc.deliveries.RegisterVehicle(actorID(c), req.VehicleType, req.LicensePlate, req.Model, req.Color)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Vehicle registered", vehicle)
}

// SetAvailability -> driver toggles online/available flags
func (dc *DeliveryController) SetAvailability(c *gin.Context) {
	var req struct {
		IsOnline    *bool `json:"is_online" binding:"required"`
		IsAvailable *bool `json:"is_available" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := dc.deliveries.SetDriverAvailability(actorID(c), *req.IsOnline, *req.IsAvailable); err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Availability updated", gin.H{
		"is_online":    *req.IsOnline,
		"is_available": *req.IsAvailable,
	})
}
