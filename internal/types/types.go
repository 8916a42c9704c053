package types

import "time"

// UnknownLabel is the label reported for faces that match nobody.
const UnknownLabel = -1

// DetectParams configures one call of a cascade-style detector.
type DetectParams struct {
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"` // smallest side in pixels, 0 for no limit
	MaxSize      int     `yaml:"max_size"` // largest side in pixels, 0 for no limit
}

// Sample is a stored training image owned by a person.
// Content holds the encoded image bytes; Type identifies the encoding.
type Sample struct {
	ID       int64
	PersonID int
	Content  []byte
	Width    int
	Height   int
	Type     int
}

// SampleTypeJPEG marks Content as a JPEG encoded grey image.
const SampleTypeJPEG = 0

// Person is a named identity that training samples belong to.
type Person struct {
	ID        int
	Name      string
	Count     int
	CreatedAt time.Time
}
