package urdf

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/workcell/pkg/workcell"
)

// Person is a package maintainer.
type Person struct {
	Name  string
	Email string
}

// PackageContext describes a description package.
type PackageContext struct {
	ProjectName  string
	Description  string
	Version      string
	License      string
	Maintainers  []Person
	Dependencies []string
	// FixedFrame is the link the exported robot is fixed to.
	FixedFrame   string
	URDFFileName string
}

// DefaultPackageContext returns the package settings used when the caller
// supplies none.
func DefaultPackageContext(w *workcell.Workcell) PackageContext {
	name := w.Metadata().Name
	if name == "" {
		name = "workcell"
	}
	return PackageContext{
		ProjectName:  name + "_description",
		Description:  "Robot description of " + name,
		Version:      "0.0.1",
		License:      "Apache-2.0",
		FixedFrame:   "world",
		URDFFileName: "robot.urdf",
	}
}

type packageXML struct {
	XMLName     xml.Name        `xml:"package"`
	Format      string          `xml:"format,attr"`
	Name        string          `xml:"name"`
	Version     string          `xml:"version"`
	Description string          `xml:"description"`
	Maintainers []maintainerXML `xml:"maintainer"`
	License     string          `xml:"license"`
	Buildtool   string          `xml:"buildtool_depend"`
	ExecDepends []string        `xml:"exec_depend"`
}

type maintainerXML struct {
	Email string `xml:"email,attr"`
	Name  string `xml:",chardata"`
}

// ExportPackage writes a description package for w under dir and returns
// the path of the robot description inside it. The layout is
// <project>/package.xml and <project>/urdf/<file>.
func ExportPackage(w *workcell.Workcell, dir string, pc PackageContext) (string, error) {
	def := DefaultPackageContext(w)
	if pc.ProjectName == "" {
		pc.ProjectName = def.ProjectName
	}
	if pc.Version == "" {
		pc.Version = def.Version
	}
	if pc.URDFFileName == "" {
		pc.URDFFileName = def.URDFFileName
	}

	doc, err := Export(w, ExportOptions{FixedFrame: pc.FixedFrame})
	if err != nil {
		return "", err
	}

	root := filepath.Join(dir, pc.ProjectName)
	if err := os.MkdirAll(filepath.Join(root, "urdf"), 0o755); err != nil {
		return "", fmt.Errorf("create package: %w", err)
	}

	manifest := packageXML{
		Format:      "3",
		Name:        pc.ProjectName,
		Version:     pc.Version,
		Description: pc.Description,
		License:     pc.License,
		Buildtool:   "ament_cmake",
		ExecDepends: pc.Dependencies,
	}
	for _, m := range pc.Maintainers {
		manifest.Maintainers = append(manifest.Maintainers, maintainerXML{Email: m.Email, Name: m.Name})
	}
	mb, err := xml.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode package manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, "package.xml"), append(append([]byte(xml.Header), mb...), '\n'), 0o644); err != nil {
		return "", err
	}

	out := filepath.Join(root, "urdf", pc.URDFFileName)
	if err := os.WriteFile(out, doc, 0o644); err != nil {
		return "", err
	}
	return out, nil
}
