package extensions

import (
	"context"
	"fmt"
	"math"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
)

const earthRadiusKm = 6371.0

// Geolocatable stores a coordinate pair and measures distances between entities.
type Geolocatable struct {
	LatField string
	LngField string
}

func (g Geolocatable) latField() string {
	if g.LatField == "" {
		return "latitude"
	}
	return g.LatField
}

func (g Geolocatable) lngField() string {
	if g.LngField == "" {
		return "longitude"
	}
	return g.LngField
}

func (g Geolocatable) Name() string { return "geolocatable" }

func (g Geolocatable) DeclareFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{
		{Name: g.latField(), Type: domain.FieldTypeFloat},
		{Name: g.lngField(), Type: domain.FieldTypeFloat},
	}
}

func (g Geolocatable) DeclareMethods() map[string]entity.Method {
	return map[string]entity.Method{
		"getDistance": func(ctx context.Context, e *entity.Entity, args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("getDistance expects one entity")
			}
			other, ok := args[0].(*entity.Entity)
			if !ok {
				return nil, fmt.Errorf("getDistance expects an entity, got %T", args[0])
			}
			return g.Distance(e, other)
		},
	}
}

// PrePersist rejects coordinates out of range or a half-set pair.
func (g Geolocatable) PrePersist(ctx context.Context, e *entity.Entity) error {
	hasLat, hasLng := e.Has(g.latField()), e.Has(g.lngField())
	if !hasLat && !hasLng {
		return nil
	}
	if hasLat != hasLng {
		return fmt.Errorf("%s and %s must be set together", g.latField(), g.lngField())
	}
	_, _, err := g.Coordinates(e)
	return err
}

// Coordinates returns the validated coordinate pair.
func (g Geolocatable) Coordinates(e *entity.Entity) (lat, lng float64, err error) {
	lat, okLat := entity.Value[float64](e, g.latField())
	lng, okLng := entity.Value[float64](e, g.lngField())
	if !okLat || !okLng {
		return 0, 0, fmt.Errorf("%s %s has no coordinates", e.TypeName(), e.KeyString())
	}
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("%s %v out of range [-90, 90]", g.latField(), lat)
	}
	if lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("%s %v out of range [-180, 180]", g.lngField(), lng)
	}
	return lat, lng, nil
}

// Distance is the great-circle distance between two entities in kilometres.
func (g Geolocatable) Distance(a, b *entity.Entity) (float64, error) {
	lat1, lng1, err := g.Coordinates(a)
	if err != nil {
		return 0, err
	}
	lat2, lng2, err := g.Coordinates(b)
	if err != nil {
		return 0, err
	}
	return Haversine(lat1, lng1, lat2, lng2), nil
}

// Haversine returns the great-circle distance in kilometres between two points in degrees.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
