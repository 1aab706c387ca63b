package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateTechPack(ctx context.Context, data TechPackData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Tech Pack", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New(data.ProductName, props.Text{Size: 14, Style: fontstyle.Bold}),
			text.New("Category: "+data.Category, props.Text{Top: 7}),
			text.New("Designer: "+data.CreatorName, props.Text{Top: 11}),
			text.New("Generated: "+data.GeneratedAt, props.Text{Top: 15}),
		),
		col.New(6),
	)

	if data.Summary != "" {
		m.AddRow(18,
			text.NewCol(12, data.Summary, props.Text{Size: 9}),
		)
	}

	if len(data.Materials) > 0 {
		m.AddRow(8,
			text.NewCol(12, "Materials", props.Text{Size: 12, Style: fontstyle.Bold}),
		)
		m.AddRow(7,
			text.NewCol(4, "Material", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(4, "Content", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(4, "Supplier", props.Text{Style: fontstyle.Bold, Size: 9}),
		)
		for _, line := range data.Materials {
			m.AddRow(7,
				text.NewCol(4, line.Name, props.Text{Size: 9}),
				text.NewCol(4, line.Content, props.Text{Size: 9}),
				text.NewCol(4, line.Supplier, props.Text{Size: 9}),
			)
		}
	}

	if len(data.Measurements) > 0 {
		m.AddRow(8,
			text.NewCol(12, "Measurements", props.Text{Size: 12, Style: fontstyle.Bold}),
		)
		m.AddRow(7,
			text.NewCol(6, "Point of measure", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Value", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.NewCol(3, "Unit", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, line := range data.Measurements {
			m.AddRow(7,
				text.NewCol(6, line.Point, props.Text{Size: 9}),
				text.NewCol(3, line.Value, props.Text{Size: 9, Align: align.Right}),
				text.NewCol(3, line.Unit, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	if len(data.Construction) > 0 {
		m.AddRow(8,
			text.NewCol(12, "Construction notes", props.Text{Size: 12, Style: fontstyle.Bold}),
		)
		for _, note := range data.Construction {
			m.AddRow(6,
				text.NewCol(12, "- "+note, props.Text{Size: 9}),
			)
		}
	}

	if len(data.ViewURLs) > 0 {
		m.AddRow(8,
			text.NewCol(12, "Generated views", props.Text{Size: 12, Style: fontstyle.Bold}),
		)
		for _, view := range data.ViewURLs {
			m.AddRow(6,
				text.NewCol(3, view.Kind, props.Text{Size: 9}),
				text.NewCol(9, view.URL, props.Text{Size: 8}),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
