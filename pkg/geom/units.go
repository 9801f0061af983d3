package geom

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a length unit used for workcell coordinates.
type Unit int

const (
	Meter Unit = iota
	Centimeter
	Millimeter
	Inch
	Foot
)

func (u Unit) String() string {
	switch u {
	case Meter:
		return "m"
	case Centimeter:
		return "cm"
	case Millimeter:
		return "mm"
	case Inch:
		return "in"
	case Foot:
		return "ft"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Meters returns the length of one u in metres.
func (u Unit) Meters() float64 {
	switch u {
	case Centimeter:
		return 0.01
	case Millimeter:
		return 0.001
	case Inch:
		return 0.0254
	case Foot:
		return 0.3048
	default:
		return 1
	}
}

// Factor returns the multiplier that converts a length in from to a
// length in to.
func Factor(from, to Unit) float64 {
	if from == to {
		return 1
	}
	return from.Meters() / to.Meters()
}

// ParseUnit parses a unit abbreviation or name.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "meter", "meters", "metre", "metres":
		return Meter, nil
	case "cm", "centimeter", "centimeters":
		return Centimeter, nil
	case "mm", "millimeter", "millimeters":
		return Millimeter, nil
	case "in", "inch", "inches":
		return Inch, nil
	case "ft", "foot", "feet":
		return Foot, nil
	}
	return Meter, fmt.Errorf("unknown length unit %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(b []byte) error {
	parsed, err := ParseUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// UpAxis names the world axis that points up.
type UpAxis int

const (
	UpZ UpAxis = iota
	UpY
)

func (a UpAxis) String() string {
	switch a {
	case UpZ:
		return "z"
	case UpY:
		return "y"
	default:
		return fmt.Sprintf("UpAxis(%d)", int(a))
	}
}

// ParseUpAxis parses "z" or "y".
func ParseUpAxis(s string) (UpAxis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "z", "+z":
		return UpZ, nil
	case "y", "+y":
		return UpY, nil
	}
	return UpZ, fmt.Errorf("unknown up axis %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a UpAxis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *UpAxis) UnmarshalText(b []byte) error {
	parsed, err := ParseUpAxis(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UpAxisConversion returns the pose that re-expresses world coordinates
// authored with up axis from in a world whose up axis is to.
func UpAxisConversion(from, to UpAxis) Pose {
	switch {
	case from == to:
		return Identity()
	case from == UpZ && to == UpY:
		return Pose{Rotation: AxisAngle(Vec3{X: 1}, -math.Pi/2)}
	default:
		return Pose{Rotation: AxisAngle(Vec3{X: 1}, math.Pi/2)}
	}
}
