// Package presets holds a small embedded CSV catalog of named backing-file
// sizes (`format tiny`, `format floppy`, …), grounded on disks/disks.go's
// go:embed + gocarina/gocsv pattern in the teacher driver, adapted from disk
// geometries (tracks/heads/sectors) to this filesystem's single
// size_bytes field.
package presets

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/gocarina/gocsv"
)

// Preset names one predefined backing-file size.
type Preset struct {
	Slug        string `csv:"slug"`
	Name        string `csv:"name"`
	SizeBytes   int64  `csv:"size_bytes"`
	Description string `csv:"description"`
}

//go:embed presets.csv
var rawCSV string

var bySlug map[string]Preset

func init() {
	bySlug = make(map[string]Preset)
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(rawCSV),
		func(row Preset) error {
			if _, exists := bySlug[row.Slug]; exists {
				return fmt.Errorf("duplicate preset slug %q", row.Slug)
			}
			bySlug[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// Lookup returns the preset registered under slug.
func Lookup(slug string) (Preset, vfs.DriverError) {
	p, ok := bySlug[slug]
	if !ok {
		return Preset{}, vfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no preset named %q", slug))
	}
	return p, nil
}

// All returns every registered preset, unordered.
func All() []Preset {
	out := make([]Preset, 0, len(bySlug))
	for _, p := range bySlug {
		out = append(out, p)
	}
	return out
}

// Geometry computes the Superblock this preset's size would yield.
func (p Preset) Geometry() (vfs.Superblock, vfs.DriverError) {
	return vfs.ComputeGeometry(p.SizeBytes)
}
