package urdf

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/workcell/pkg/geom"
)

// Document element types. Attribute-valued vectors are kept as strings so
// that the exporter controls float formatting.

type robotXML struct {
	XMLName   xml.Name      `xml:"robot"`
	Name      string        `xml:"name,attr"`
	Materials []materialXML `xml:"material"`
	Links     []linkXML     `xml:"link"`
	Joints    []jointXML    `xml:"joint"`
}

type originXML struct {
	XYZ string `xml:"xyz,attr,omitempty"`
	RPY string `xml:"rpy,attr,omitempty"`
}

type linkXML struct {
	Name       string         `xml:"name,attr"`
	Inertial   *inertialXML   `xml:"inertial"`
	Visuals    []visualXML    `xml:"visual"`
	Collisions []collisionXML `xml:"collision"`
}

type valueXML struct {
	Value float64 `xml:"value,attr"`
}

type inertiaXML struct {
	IXX float64 `xml:"ixx,attr"`
	IXY float64 `xml:"ixy,attr"`
	IXZ float64 `xml:"ixz,attr"`
	IYY float64 `xml:"iyy,attr"`
	IYZ float64 `xml:"iyz,attr"`
	IZZ float64 `xml:"izz,attr"`
}

type inertialXML struct {
	Origin  *originXML  `xml:"origin"`
	Mass    valueXML    `xml:"mass"`
	Inertia *inertiaXML `xml:"inertia"`
}

type visualXML struct {
	Name     string       `xml:"name,attr,omitempty"`
	Origin   *originXML   `xml:"origin"`
	Geometry geometryXML  `xml:"geometry"`
	Material *materialXML `xml:"material"`
}

type collisionXML struct {
	Name     string      `xml:"name,attr,omitempty"`
	Origin   *originXML  `xml:"origin"`
	Geometry geometryXML `xml:"geometry"`
}

type boxXML struct {
	Size string `xml:"size,attr"`
}

type cylinderXML struct {
	Radius float64 `xml:"radius,attr"`
	Length float64 `xml:"length,attr"`
}

type sphereXML struct {
	Radius float64 `xml:"radius,attr"`
}

type meshXML struct {
	Filename string `xml:"filename,attr"`
	Scale    string `xml:"scale,attr,omitempty"`
}

type geometryXML struct {
	Box      *boxXML      `xml:"box"`
	Cylinder *cylinderXML `xml:"cylinder"`
	Sphere   *sphereXML   `xml:"sphere"`
	Mesh     *meshXML     `xml:"mesh"`
}

type colorXML struct {
	RGBA string `xml:"rgba,attr"`
}

type textureXML struct {
	Filename string `xml:"filename,attr"`
}

type materialXML struct {
	Name    string      `xml:"name,attr"`
	Color   *colorXML   `xml:"color"`
	Texture *textureXML `xml:"texture"`
}

type linkRefXML struct {
	Link string `xml:"link,attr"`
}

type axisXML struct {
	XYZ string `xml:"xyz,attr"`
}

type limitXML struct {
	Lower    float64 `xml:"lower,attr"`
	Upper    float64 `xml:"upper,attr"`
	Effort   float64 `xml:"effort,attr"`
	Velocity float64 `xml:"velocity,attr"`
}

type jointXML struct {
	Name   string     `xml:"name,attr"`
	Type   string     `xml:"type,attr"`
	Origin *originXML `xml:"origin"`
	Parent linkRefXML `xml:"parent"`
	Child  linkRefXML `xml:"child"`
	Axis   *axisXML   `xml:"axis"`
	Limit  *limitXML  `xml:"limit"`
}

// ---------------------------------------------------------------------------
// Attribute codecs
// ---------------------------------------------------------------------------

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out[i] = v
	}
	return out, nil
}

func parseVec3(s string, def geom.Vec3) (geom.Vec3, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	f, err := parseFloats(s, 3)
	if err != nil {
		return geom.Vec3{}, err
	}
	return geom.Vec3{X: f[0], Y: f[1], Z: f[2]}, nil
}

func parseOrigin(o *originXML) (geom.Pose, error) {
	if o == nil {
		return geom.Identity(), nil
	}
	xyz, err := parseVec3(o.XYZ, geom.Vec3{})
	if err != nil {
		return geom.Pose{}, fmt.Errorf("origin xyz: %w", err)
	}
	rpy, err := parseVec3(o.RPY, geom.Vec3{})
	if err != nil {
		return geom.Pose{}, fmt.Errorf("origin rpy: %w", err)
	}
	return geom.PoseFromRPY(xyz, rpy), nil
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatVec3(v geom.Vec3) string {
	return formatFloat(v.X) + " " + formatFloat(v.Y) + " " + formatFloat(v.Z)
}

func formatOrigin(p geom.Pose) *originXML {
	return &originXML{XYZ: formatVec3(p.Position), RPY: formatVec3(p.RPY())}
}
