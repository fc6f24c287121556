// Package query turns ride list query parameters into a RideQuery.
package query

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"ridez/internal/domain"
	"ridez/internal/geo"
)

// Query parameter names.
const (
	ParamStatus         = "status"
	ParamRiderEmail     = "rider_email"
	ParamOrdering       = "ordering"
	ParamLat            = "lat"
	ParamLon            = "lon"
	ParamDistanceOrigin = "distance_origin"
	ParamLimit          = "limit"
	ParamOffset         = "offset"
)

// FieldDistance is the virtual ordering field computed from lat/lon.
const FieldDistance = "distance"

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var (
	// ErrDistanceCoordinatesRequired is returned when ordering by distance without a usable lat/lon.
	ErrDistanceCoordinatesRequired = errors.New("coordinates required for distance ordering")

	// ErrInvalidStatusFilter is returned when a status filter value is not a known ride status.
	ErrInvalidStatusFilter = errors.New("invalid status filter")

	// ErrInvalidDistanceOrigin is returned for an unknown distance_origin value.
	ErrInvalidDistanceOrigin = errors.New("invalid distance origin")

	// ErrInvalidPagination is returned for a non-numeric or negative limit/offset.
	ErrInvalidPagination = errors.New("invalid pagination")
)

// orderingFields are the fields a caller may order by.
var orderingFields = map[string]bool{
	"id":          true,
	"pickup_time": true,
	"status":      true,
	FieldDistance: true,
}

// Origin selects which ride coordinate distance is measured from.
type Origin string

const (
	OriginPickup  Origin = "pickup"
	OriginDropoff Origin = "dropoff"
)

// OrderField is one entry of the ordering list.
type OrderField struct {
	Field string
	Desc  bool
}

// String renders the field in ordering syntax.
func (f OrderField) String() string {
	if f.Desc {
		return "-" + f.Field
	}
	return f.Field
}

// RideQuery is a parsed ride list request.
type RideQuery struct {
	Statuses   []domain.RideStatus
	RiderEmail string
	Ordering   []OrderField
	Origin     Origin

	// Point is set only when ordering by distance.
	Point *geo.Point

	Limit  int
	Offset int
}

// WantsDistance reports whether the ordering includes distance.
func (q RideQuery) WantsDistance() bool {
	for _, f := range q.Ordering {
		if f.Field == FieldDistance {
			return true
		}
	}
	return false
}

// ParseRideQuery parses ride list query parameters.
func ParseRideQuery(values url.Values) (RideQuery, error) {
	q := RideQuery{
		RiderEmail: strings.TrimSpace(values.Get(ParamRiderEmail)),
		Ordering:   ParseOrdering(values.Get(ParamOrdering)),
		Origin:     OriginPickup,
		Limit:      DefaultLimit,
	}

	for _, raw := range values[ParamStatus] {
		for _, v := range strings.Split(raw, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			status := domain.RideStatus(v)
			if !status.Valid() {
				return RideQuery{}, fmt.Errorf("%w: select a valid choice, %q is not one of the available choices", ErrInvalidStatusFilter, v)
			}
			q.Statuses = appendUnique(q.Statuses, status)
		}
	}

	var err error
	if q.Limit, err = parseBounded(values.Get(ParamLimit), DefaultLimit); err != nil {
		return RideQuery{}, fmt.Errorf("%w: %s: %v", ErrInvalidPagination, ParamLimit, err)
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	if q.Offset, err = parseBounded(values.Get(ParamOffset), 0); err != nil {
		return RideQuery{}, fmt.Errorf("%w: %s: %v", ErrInvalidPagination, ParamOffset, err)
	}

	if !q.WantsDistance() {
		return q, nil
	}

	// Like lat/lon, distance_origin only matters when ordering by distance.
	if origin := values.Get(ParamDistanceOrigin); origin != "" {
		switch Origin(origin) {
		case OriginPickup, OriginDropoff:
			q.Origin = Origin(origin)
		default:
			return RideQuery{}, fmt.Errorf("%w: %q", ErrInvalidDistanceOrigin, origin)
		}
	}

	point, err := parsePoint(values)
	if err != nil {
		return RideQuery{}, err
	}
	q.Point = &point

	return q, nil
}

// ParseOrdering splits a comma separated ordering list. Unknown fields are
// dropped and only the first occurrence of a field is kept.
func ParseOrdering(raw string) []OrderField {
	var fields []OrderField
	seen := make(map[string]bool)
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		desc := strings.HasPrefix(term, "-")
		name := strings.TrimPrefix(term, "-")
		if !orderingFields[name] || seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, OrderField{Field: name, Desc: desc})
	}
	return fields
}

// CoordinatesMessage describes what a caller must send to order by distance.
func CoordinatesMessage() string {
	return fmt.Sprintf(
		"latitude (key: %s) and longitude (key: %s) must be provided as valid numbers when ordering by distance",
		ParamLat, ParamLon,
	)
}

func parsePoint(values url.Values) (geo.Point, error) {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(values.Get(ParamLat)), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(values.Get(ParamLon)), 64)
	if latErr != nil || lonErr != nil || isNaNOrInf(lat) || isNaNOrInf(lon) {
		return geo.Point{}, fmt.Errorf("%w: %s", ErrDistanceCoordinatesRequired, CoordinatesMessage())
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}

func parseBounded(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

func isNaNOrInf(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func appendUnique(statuses []domain.RideStatus, status domain.RideStatus) []domain.RideStatus {
	for _, s := range statuses {
		if s == status {
			return statuses
		}
	}
	return append(statuses, status)
}
