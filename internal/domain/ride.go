package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusEnRoute RideStatus = "en-route"
	RideStatusPickup  RideStatus = "pickup"
	RideStatusDropoff RideStatus = "dropoff"
)

// RideStatuses lists every valid ride status.
var RideStatuses = []RideStatus{RideStatusEnRoute, RideStatusPickup, RideStatusDropoff}

// Valid reports whether s is one of the known ride statuses.
func (s RideStatus) Valid() bool {
	for _, status := range RideStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Ride represents a ride record.
//
// Rider and Driver are nil when the ride has no such user, including after
// the referenced user was deleted.
type Ride struct {
	ID               int64
	Status           RideStatus
	RiderID          *int64
	DriverID         *int64
	Rider            *User
	Driver           *User
	PickupLatitude   float64
	PickupLongitude  float64
	DropoffLatitude  float64
	DropoffLongitude float64
	PickupTime       time.Time
	Events           []RideEvent

	// Distance is set only when the ride was loaded with distance ordering.
	Distance *float64
}

// RideEvent is a timestamped description attached to a ride.
type RideEvent struct {
	ID          int64
	RideID      int64
	Description string
	CreatedAt   time.Time
}

// RideEventDescriptionMaxLength bounds RideEvent.Description.
const RideEventDescriptionMaxLength = 255
