package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ridez/internal/domain"
	"ridez/internal/geo"
	"ridez/internal/query"
	"ridez/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
	log         logrus.FieldLogger
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, log logrus.FieldLogger) *RideHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RideHandler{rideService: rideService, log: log}
}

// RideRequest is the HTTP request body for creating or replacing a ride.
type RideRequest struct {
	Status           domain.RideStatus `json:"status" binding:"omitempty,oneof=en-route pickup dropoff"`
	RiderID          *int64            `json:"rider_id" binding:"omitempty,gt=0"`
	DriverID         *int64            `json:"driver_id" binding:"omitempty,gt=0"`
	PickupLatitude   *float64          `json:"pickup_latitude" binding:"required,min=-90,max=90"`
	PickupLongitude  *float64          `json:"pickup_longitude" binding:"required,min=-180,max=180"`
	DropoffLatitude  *float64          `json:"dropoff_latitude" binding:"required,min=-90,max=90"`
	DropoffLongitude *float64          `json:"dropoff_longitude" binding:"required,min=-180,max=180"`
	PickupTime       *time.Time        `json:"pickup_time" binding:"required"`
}

func (r RideRequest) toInput() service.RideInput {
	return service.RideInput{
		Status:           r.Status,
		RiderID:          r.RiderID,
		DriverID:         r.DriverID,
		PickupLatitude:   *r.PickupLatitude,
		PickupLongitude:  *r.PickupLongitude,
		DropoffLatitude:  *r.DropoffLatitude,
		DropoffLongitude: *r.DropoffLongitude,
		PickupTime:       *r.PickupTime,
	}
}

// optional records whether a JSON field was present, so an explicit null
// can be told apart from an omitted field.
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// PatchRideRequest is the HTTP request body for a partial ride update.
type PatchRideRequest struct {
	Status           *domain.RideStatus `json:"status" binding:"omitempty,oneof=en-route pickup dropoff"`
	RiderID          optional[int64]    `json:"rider_id"`
	DriverID         optional[int64]    `json:"driver_id"`
	PickupLatitude   *float64           `json:"pickup_latitude" binding:"omitempty,min=-90,max=90"`
	PickupLongitude  *float64           `json:"pickup_longitude" binding:"omitempty,min=-180,max=180"`
	DropoffLatitude  *float64           `json:"dropoff_latitude" binding:"omitempty,min=-90,max=90"`
	DropoffLongitude *float64           `json:"dropoff_longitude" binding:"omitempty,min=-180,max=180"`
	PickupTime       *time.Time         `json:"pickup_time"`
}

func (r PatchRideRequest) toPatch() service.RidePatch {
	return service.RidePatch{
		Status:           r.Status,
		RiderID:          service.NullableID{Set: r.RiderID.Set, ID: r.RiderID.Value},
		DriverID:         service.NullableID{Set: r.DriverID.Set, ID: r.DriverID.Value},
		PickupLatitude:   r.PickupLatitude,
		PickupLongitude:  r.PickupLongitude,
		DropoffLatitude:  r.DropoffLatitude,
		DropoffLongitude: r.DropoffLongitude,
		PickupTime:       r.PickupTime,
	}
}

// RideEventRequest is the HTTP request body for attaching an event.
type RideEventRequest struct {
	Description string `json:"description" binding:"required,max=255"`
}

// UserSummary is the nested rider/driver representation.
type UserSummary struct {
	IDUser      int64  `json:"id_user"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// RideEventResponse is the HTTP representation of a ride event.
type RideEventResponse struct {
	IDRideEvent int64     `json:"id_ride_event"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	IDRide           int64               `json:"id_ride"`
	Status           string              `json:"status"`
	Rider            *UserSummary        `json:"rider"`
	Driver           *UserSummary        `json:"driver"`
	PickupLatitude   float64             `json:"pickup_latitude"`
	PickupLongitude  float64             `json:"pickup_longitude"`
	DropoffLatitude  float64             `json:"dropoff_latitude"`
	DropoffLongitude float64             `json:"dropoff_longitude"`
	PickupGeohash    string              `json:"pickup_geohash"`
	DropoffGeohash   string              `json:"dropoff_geohash"`
	PickupTime       time.Time           `json:"pickup_time"`
	TodaysRideEvents []RideEventResponse `json:"todays_ride_events"`
	Distance         *float64            `json:"distance,omitempty"`
}

// RideListResponse is one page of rides.
type RideListResponse struct {
	Count   int            `json:"count"`
	Results []RideResponse `json:"results"`
}

func newUserSummary(u *domain.User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		IDUser:      u.ID,
		Role:        string(u.Role),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
	}
}

func newRideEventResponse(e domain.RideEvent) RideEventResponse {
	return RideEventResponse{IDRideEvent: e.ID, Description: e.Description, CreatedAt: e.CreatedAt}
}

func newRideResponse(r *domain.Ride) RideResponse {
	events := make([]RideEventResponse, 0, len(r.Events))
	for _, e := range r.Events {
		events = append(events, newRideEventResponse(e))
	}

	return RideResponse{
		IDRide:           r.ID,
		Status:           string(r.Status),
		Rider:            newUserSummary(r.Rider),
		Driver:           newUserSummary(r.Driver),
		PickupLatitude:   r.PickupLatitude,
		PickupLongitude:  r.PickupLongitude,
		DropoffLatitude:  r.DropoffLatitude,
		DropoffLongitude: r.DropoffLongitude,
		PickupGeohash:    geo.Geohash(r.PickupLatitude, r.PickupLongitude),
		DropoffGeohash:   geo.Geohash(r.DropoffLatitude, r.DropoffLongitude),
		PickupTime:       r.PickupTime,
		TodaysRideEvents: events,
		Distance:         r.Distance,
	}
}

// List handles GET /rides
func (h *RideHandler) List(c *gin.Context) {
	q, err := query.ParseRideQuery(c.Request.URL.Query())
	if err != nil {
		if errors.Is(err, query.ErrDistanceCoordinatesRequired) {
			h.log.WithError(err).WithField("query", c.Request.URL.RawQuery).Error(query.CoordinatesMessage())
		}
		respondError(c, err)
		return
	}

	result, err := h.rideService.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	response := RideListResponse{Count: result.Total, Results: make([]RideResponse, 0, len(result.Rides))}
	for _, r := range result.Rides {
		response.Results = append(response.Results, newRideResponse(r))
	}

	respondJSON(c, http.StatusOK, response)
}

// Create handles POST /rides
func (h *RideHandler) Create(c *gin.Context) {
	var req RideRequest
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rideService.Create(c.Request.Context(), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newRideResponse(ride))
}

// Get handles GET /rides/:id
func (h *RideHandler) Get(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidRideID)
	if err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.rideService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// Update handles PUT /rides/:id
func (h *RideHandler) Update(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidRideID)
	if err != nil {
		respondError(c, err)
		return
	}

	var req RideRequest
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rideService.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// Patch handles PATCH /rides/:id
func (h *RideHandler) Patch(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidRideID)
	if err != nil {
		respondError(c, err)
		return
	}

	var req PatchRideRequest
	if !bindJSON(c, &req) {
		return
	}

	ride, err := h.rideService.Patch(c.Request.Context(), id, req.toPatch())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// Delete handles DELETE /rides/:id
func (h *RideHandler) Delete(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidRideID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.rideService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AddEvent handles POST /rides/:id/events
func (h *RideHandler) AddEvent(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidRideID)
	if err != nil {
		respondError(c, err)
		return
	}

	var req RideEventRequest
	if !bindJSON(c, &req) {
		return
	}

	event, err := h.rideService.AddEvent(c.Request.Context(), id, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newRideEventResponse(*event))
}
