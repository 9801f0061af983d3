package urdf

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// attrKind is the lexical type of a schema attribute.
type attrKind int

const (
	attrString attrKind = iota
	attrDouble
	attrVec3
	attrVec4
	attrJointType
)

type attrRule struct {
	kind     attrKind
	required bool
}

// elementRule describes one element of the robot description schema.
// A lax element accepts any content.
type elementRule struct {
	attrs    map[string]attrRule
	children map[string]*elementRule
	// required lists children that must appear exactly once.
	required []string
	// unique children may appear at most once; repeated children are
	// only allowed when listed in repeat.
	repeat bool
	// choice requires exactly one child.
	choice bool
	lax    bool
}

var jointTypes = []string{"fixed", "revolute", "continuous", "prismatic", "floating", "planar"}

var robotSchema = func() *elementRule {
	lax := &elementRule{lax: true}
	origin := &elementRule{attrs: map[string]attrRule{"xyz": {kind: attrVec3}, "rpy": {kind: attrVec3}}}
	value := &elementRule{attrs: map[string]attrRule{"value": {attrDouble, true}}}
	inertia := &elementRule{attrs: map[string]attrRule{
		"ixx": {attrDouble, true}, "ixy": {attrDouble, true}, "ixz": {attrDouble, true},
		"iyy": {attrDouble, true}, "iyz": {attrDouble, true}, "izz": {attrDouble, true},
	}}
	inertial := &elementRule{
		children: map[string]*elementRule{"origin": origin, "mass": value, "inertia": inertia},
		required: []string{"mass", "inertia"},
	}
	geometry := &elementRule{
		choice: true,
		children: map[string]*elementRule{
			"box":      {attrs: map[string]attrRule{"size": {attrVec3, true}}},
			"cylinder": {attrs: map[string]attrRule{"radius": {attrDouble, true}, "length": {attrDouble, true}}},
			"sphere":   {attrs: map[string]attrRule{"radius": {attrDouble, true}}},
			"mesh":     {attrs: map[string]attrRule{"filename": {attrString, true}, "scale": {kind: attrVec3}}},
		},
	}
	material := &elementRule{
		attrs: map[string]attrRule{"name": {attrString, true}},
		children: map[string]*elementRule{
			"color":   {attrs: map[string]attrRule{"rgba": {attrVec4, true}}},
			"texture": {attrs: map[string]attrRule{"filename": {attrString, true}}},
		},
	}
	visual := &elementRule{
		attrs:    map[string]attrRule{"name": {}},
		children: map[string]*elementRule{"origin": origin, "geometry": geometry, "material": material},
		required: []string{"geometry"},
	}
	collision := &elementRule{
		attrs:    map[string]attrRule{"name": {}},
		children: map[string]*elementRule{"origin": origin, "geometry": geometry},
		required: []string{"geometry"},
	}
	link := &elementRule{
		attrs:    map[string]attrRule{"name": {attrString, true}},
		children: map[string]*elementRule{"inertial": inertial, "visual": visual, "collision": collision},
		repeat:   true,
	}
	linkRef := &elementRule{attrs: map[string]attrRule{"link": {attrString, true}}}
	joint := &elementRule{
		attrs: map[string]attrRule{"name": {attrString, true}, "type": {attrJointType, true}},
		children: map[string]*elementRule{
			"origin": origin,
			"parent": linkRef,
			"child":  linkRef,
			"axis":   {attrs: map[string]attrRule{"xyz": {attrVec3, true}}},
			"limit": {attrs: map[string]attrRule{
				"lower": {kind: attrDouble}, "upper": {kind: attrDouble},
				"effort": {kind: attrDouble}, "velocity": {kind: attrDouble},
			}},
			"calibration":       lax,
			"dynamics":          lax,
			"mimic":             lax,
			"safety_controller": lax,
		},
		required: []string{"parent", "child"},
	}
	return &elementRule{
		attrs: map[string]attrRule{"name": {attrString, true}},
		children: map[string]*elementRule{
			"link": link, "joint": joint, "material": material,
			"transmission": lax, "gazebo": lax,
		},
		repeat: true,
	}
}()

type schemaFrame struct {
	name string
	rule *elementRule
	seen map[string]int
}

// ValidateSchema checks a robot description against the structural schema
// of the format: element nesting, required elements and attributes, and
// the lexical form of numeric, vector and enumerated attributes. Every
// violation is listed in the returned error.
func ValidateSchema(doc []byte) error {
	var (
		violations []string
		stack      []*schemaFrame
		rooted     bool
	)
	violate := func(dec *xml.Decoder, format string, args ...any) {
		line, _ := dec.InputPos()
		violations = append(violations, fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)))
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &SchemaError{cause: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			var rule *elementRule
			switch {
			case len(stack) == 0:
				if rooted || name != "robot" {
					violate(dec, "unexpected root element <%s>", name)
					rule = &elementRule{lax: true}
				} else {
					rule = robotSchema
				}
				rooted = true
			case stack[len(stack)-1].rule.lax:
				rule = stack[len(stack)-1].rule
			default:
				parent := stack[len(stack)-1]
				rule = parent.rule.children[name]
				if rule == nil {
					violate(dec, "element <%s> not allowed in <%s>", name, parent.name)
					rule = &elementRule{lax: true}
				} else {
					parent.seen[name]++
					if !parent.rule.repeat && parent.seen[name] == 2 {
						violate(dec, "element <%s> repeated in <%s>", name, parent.name)
					}
				}
				if !rule.lax {
					checkAttrs(t, rule, func(format string, args ...any) { violate(dec, format, args...) })
				}
			}
			if len(stack) == 0 && !rule.lax {
				checkAttrs(t, rule, func(format string, args ...any) { violate(dec, format, args...) })
			}
			stack = append(stack, &schemaFrame{name: name, rule: rule, seen: map[string]int{}})

		case xml.EndElement:
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.rule.lax {
				continue
			}
			for _, req := range f.rule.required {
				if f.seen[req] == 0 {
					violate(dec, "<%s> is missing required element <%s>", f.name, req)
				}
			}
			if f.rule.choice {
				n := 0
				for _, c := range f.seen {
					n += c
				}
				if n != 1 {
					violate(dec, "<%s> must hold exactly one shape, found %d", f.name, n)
				}
			}
		}
	}
	if !rooted {
		violations = append(violations, "document has no <robot> element")
	}
	if len(violations) == 0 {
		return nil
	}
	return &SchemaError{Violations: violations}
}

func checkAttrs(t xml.StartElement, rule *elementRule, violate func(string, ...any)) {
	present := make(map[string]bool, len(t.Attr))
	for _, a := range t.Attr {
		if a.Name.Space != "" {
			continue
		}
		present[a.Name.Local] = true
		ar, ok := rule.attrs[a.Name.Local]
		if !ok {
			if t.Name.Local != "robot" {
				violate("attribute %q not allowed on <%s>", a.Name.Local, t.Name.Local)
			}
			continue
		}
		if err := checkLexical(ar.kind, a.Value); err != nil {
			violate("<%s %s=%q>: %v", t.Name.Local, a.Name.Local, a.Value, err)
		}
	}
	for name, ar := range rule.attrs {
		if ar.required && !present[name] {
			violate("<%s> is missing required attribute %q", t.Name.Local, name)
		}
	}
}

func checkLexical(kind attrKind, v string) error {
	switch kind {
	case attrDouble:
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return fmt.Errorf("not a number")
		}
	case attrVec3:
		_, err := parseFloats(v, 3)
		return err
	case attrVec4:
		_, err := parseFloats(v, 4)
		return err
	case attrJointType:
		if !slices.Contains(jointTypes, v) {
			return fmt.Errorf("unknown joint type")
		}
	}
	return nil
}

// SchemaError lists the schema violations of a document. A document that
// is not well-formed carries the decoder error as its cause instead.
type SchemaError struct {
	Violations []string
	cause      error
}

func (e *SchemaError) Error() string {
	if len(e.Violations) == 0 {
		return "schema validation: " + e.cause.Error()
	}
	return fmt.Sprintf("%d schema violation(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

func (e *SchemaError) Unwrap() error { return e.cause }
