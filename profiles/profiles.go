// Package profiles supplies named cache tunable presets (block size,
// capacity, LRU-K depth, descriptor table size), loaded from an embedded
// CSV, mirroring the teacher's disks.GetPredefinedDiskGeometry.
package profiles

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/SemPozh/osi"
	"github.com/gocarina/gocsv"
)

// Profile is one named preset. ToConfig converts it to an osi.Config.
type Profile struct {
	Slug        string `csv:"slug"`
	Name        string `csv:"name"`
	BlockSize   int    `csv:"block_size"`
	Capacity    int    `csv:"capacity"`
	K           int    `csv:"k"`
	Descriptors int    `csv:"descriptors"`
	Notes       string `csv:"notes"`
}

// ToConfig converts p into the osi.Config it describes.
func (p Profile) ToConfig() osi.Config {
	return osi.Config{
		BlockSize:   p.BlockSize,
		Capacity:    p.Capacity,
		K:           p.K,
		Descriptors: p.Descriptors,
	}
}

//go:embed profiles.csv
var rawCSV string

var byName map[string]Profile

// Get returns the named preset, or an error if no preset with that slug
// was loaded.
func Get(slug string) (Profile, error) {
	p, ok := byName[slug]
	if !ok {
		return Profile{}, fmt.Errorf("no predefined cache profile exists with slug %q", slug)
	}
	return p, nil
}

// Names returns every loaded preset's slug, in no particular order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	return names
}

func init() {
	byName = make(map[string]Profile)
	reader := strings.NewReader(rawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Profile) error {
		if _, exists := byName[row.Slug]; exists {
			return fmt.Errorf("duplicate cache profile slug %q", row.Slug)
		}
		byName[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}
