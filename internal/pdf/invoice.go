// Package pdf формирует PDF-документ инвойса.
package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/invoicly/invoicly/internal/billing"
	"github.com/invoicly/invoicly/internal/model"
)

const dateLayout = "Jan 02, 2006"

// Renderer строит PDF-представление инвойса формата A4.
type Renderer struct{}

// NewRenderer создаёт новый рендерер PDF-документов.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render формирует документ инвойса и возвращает его содержимое.
// Суммы пересчитываются только для отображения, источником остаётся
// зафиксированное поле Total.
func (r *Renderer) Render(inv *model.Invoice) ([]byte, error) {
	totals := billing.Calculate(inv.ItemQuantity, inv.ItemRate, inv.TaxRate)
	money := func(amount float64) string {
		return billing.FormatMoney(amount, inv.Currency)
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(12, "INVOICE", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New(fmt.Sprintf("Invoice #: %d", inv.InvoiceNumber), props.Text{Top: 0, Size: 10}),
			text.New("Date: "+inv.Date.Format(dateLayout), props.Text{Top: 6, Size: 10}),
			text.New("Due: "+inv.DueDate().Format(dateLayout), props.Text{Top: 12, Size: 10}),
		),
		col.New(6),
	)

	m.AddRow(34,
		col.New(6).Add(
			text.New("Bill From", props.Text{Style: fontstyle.Bold, Size: 12}),
			text.New(inv.FromName, props.Text{Top: 7, Size: 10}),
			text.New(inv.FromEmail, props.Text{Top: 13, Size: 10}),
			text.New(inv.FromAddress, props.Text{Top: 19, Size: 10}),
		),
		col.New(6).Add(
			text.New("Bill To", props.Text{Style: fontstyle.Bold, Size: 12}),
			text.New(inv.ToName, props.Text{Top: 7, Size: 10}),
			text.New(inv.ToEmail, props.Text{Top: 13, Size: 10}),
			text.New(inv.ToAddress, props.Text{Top: 19, Size: 10}),
		),
	)

	m.AddRow(4, line.NewCol(12))

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
		text.NewCol(2, "Rate", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	m.AddRow(10,
		text.NewCol(6, inv.ItemDescription, props.Text{Size: 10}),
		text.NewCol(2, trimFloat(inv.ItemQuantity), props.Text{Size: 10, Align: align.Right}),
		text.NewCol(2, money(inv.ItemRate), props.Text{Size: 10, Align: align.Right}),
		text.NewCol(2, money(totals.LineAmount), props.Text{Size: 10, Align: align.Right}),
	)

	m.AddRow(4, col.New(8), line.NewCol(4))

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Subtotal:", props.Text{Size: 10, Align: align.Right}),
		text.NewCol(2, money(totals.Subtotal), props.Text{Size: 10, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, fmt.Sprintf("Tax (%.0f%%):", inv.TaxRate), props.Text{Size: 10, Align: align.Right}),
		text.NewCol(2, money(totals.TaxAmount), props.Text{Size: 10, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total:", props.Text{Style: fontstyle.Bold, Size: 12, Align: align.Right}),
		text.NewCol(2, money(totals.Total), props.Text{Style: fontstyle.Bold, Size: 12, Align: align.Right}),
	)

	if inv.Note != "" {
		m.AddRow(8,
			text.NewCol(12, "Notes", props.Text{Style: fontstyle.Bold, Size: 11, Top: 4}),
		)
		m.AddRow(14,
			text.NewCol(12, inv.Note, props.Text{Size: 10}),
		)
	}

	m.AddRow(10,
		text.NewCol(12, "Thank you for your business!", props.Text{Size: 9, Top: 6}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice pdf: %w", err)
	}

	return doc.GetBytes(), nil
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
