package model

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var (
	DefaultClasses = []string{"Melanoma", "Nevus"}

	// DefaultAnatomSiteCategories is the category order used when the
	// model was trained. The position of a site is its encoded value.
	DefaultAnatomSiteCategories = []string{
		"head/neck",
		"upper extremity",
		"lower extremity",
		"torso",
		"palms/soles",
		"oral/genital",
	}
)

const (
	DefaultImageSize = 224
	DefaultAgeMin    = 10
	DefaultAgeMax    = 90
)

// DefaultMetadata returns the metadata of the stock melanoma/nevus model.
func DefaultMetadata() Metadata {
	m := Metadata{}
	m.applyDefaults()
	return m
}

// LoadMetadata reads a metadata file. JSON is accepted as well as YAML.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := yaml.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()

	if err := metadata.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %q: %w", path, err)
	}
	return metadata, nil
}

func (m *Metadata) applyDefaults() {
	if m.ImageSize == 0 {
		m.ImageSize = DefaultImageSize
	}
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if len(m.Classes) == 0 {
		m.Classes = append([]string(nil), DefaultClasses...)
	}
	if len(m.AnatomSiteCategories) == 0 {
		m.AnatomSiteCategories = append([]string(nil), DefaultAnatomSiteCategories...)
	}
	if m.AgeMin == 0 && m.AgeMax == 0 {
		m.AgeMin, m.AgeMax = DefaultAgeMin, DefaultAgeMax
	}
	if m.Inputs.Image == "" {
		m.Inputs.Image = "input_image"
	}
	if m.Inputs.Sex == "" {
		m.Inputs.Sex = "input_sex"
	}
	if m.Inputs.AnatomSite == "" {
		m.Inputs.AnatomSite = "input_anatom_site"
	}
	if m.Inputs.Age == "" {
		m.Inputs.Age = "input_age"
	}
	if m.Output == "" {
		m.Output = "output"
	}
}

func (m Metadata) Validate() error {
	if m.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive, got %d", m.ImageSize)
	}
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if len(m.Classes) != 2 {
		return fmt.Errorf("expected 2 classes, got %d", len(m.Classes))
	}
	if len(m.AnatomSiteCategories) == 0 {
		return fmt.Errorf("anatom_site_categories must not be empty")
	}
	if dups := lo.FindDuplicates(m.AnatomSiteCategories); len(dups) > 0 {
		return fmt.Errorf("duplicate anatomical sites: %v", dups)
	}
	if m.AgeMax <= m.AgeMin {
		return fmt.Errorf("age_max (%v) must be greater than age_min (%v)", m.AgeMax, m.AgeMin)
	}
	return nil
}

// ImageShape is the shape of the image input tensor for a batch of one.
func (m Metadata) ImageShape() []int64 {
	size := int64(m.ImageSize)
	if m.Layout == LayoutNCHW {
		return []int64{1, 3, size, size}
	}
	return []int64{1, size, size, 3}
}

func (m Metadata) ImageLen() int {
	return 3 * m.ImageSize * m.ImageSize
}
