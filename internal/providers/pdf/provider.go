package pdf

import (
	"context"
	"io"
)

// TechPackData is the flattened spec sheet handed to the renderer.
type TechPackData struct {
	ProductName string
	Category    string
	CreatorName string
	GeneratedAt string
	Summary     string

	Materials    []MaterialLine
	Measurements []MeasurementLine
	Construction []string
	ViewURLs     []ViewLine
}

type MaterialLine struct {
	Name     string
	Content  string
	Supplier string
}

type MeasurementLine struct {
	Point string
	Value string
	Unit  string
}

type ViewLine struct {
	Kind string
	URL  string
}

type Provider interface {
	GenerateTechPack(ctx context.Context, data TechPackData) (io.Reader, error)
}
