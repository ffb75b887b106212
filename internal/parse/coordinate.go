package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a spot's position in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// SpotKey returns the canonical document key for the coordinate: "lat,lng"
// using the shortest decimal representation of each number (10 -> "10", 10.5 -> "10.5").
func (c Coordinate) SpotKey() string {
	return formatDegrees(c.Latitude) + "," + formatDegrees(c.Longitude)
}

// Validate reports whether the coordinate lies on the globe.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", c.Longitude)
	}
	return nil
}

func formatDegrees(v float64) string {
	// Normalise -0 so that "-0,0" and "0,0" never name two different spots.
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseSpotKey extracts the coordinate from a spot key of the form "lat,lng".
// Keys are not rewritten: "10.0,20.0" parses but is a different key than "10,20".
func ParseSpotKey(raw string) (Coordinate, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("unable to parse spot key %q: expected \"lat,lng\"", raw)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("unable to parse latitude from spot key %q: %w", raw, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("unable to parse longitude from spot key %q: %w", raw, err)
	}

	c := Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, fmt.Errorf("invalid spot key %q: %w", raw, err)
	}
	return c, nil
}
