/*
eskd.go - Fixed-schema XML export for filing

PURPOSE:
  Serializes a Report into the XML document the tax authority's import
  format consumes. Tag names and document structure are an external
  compatibility contract: a sender block (program name, organization
  number, timestamp) followed by a declaration block with one element per
  section, each holding Ruta<NN> children with plain numeric text.

FORMAT NOTES:
  - Box values are plain numbers, no currency or thousands formatting
  - Zero boxes are omitted entirely
  - Ruta49 is always emitted (a nil net result is itself a statement)
*/
package vat

import (
	"bytes"
	"encoding/xml"
	"time"

	"github.com/shopspring/decimal"
)

// moms is the declaration block with the period's boxes grouped by section.
type moms struct {
	XMLName xml.Name `xml:"Momsdeklaration"`
	Period  string   `xml:"Period"`

	Sales struct {
		Ruta05 string `xml:"Ruta05,omitempty"`
		Ruta06 string `xml:"Ruta06,omitempty"`
		Ruta07 string `xml:"Ruta07,omitempty"`
		Ruta08 string `xml:"Ruta08,omitempty"`
	} `xml:"Forsaljning"`

	OutputVat struct {
		Ruta10 string `xml:"Ruta10,omitempty"`
		Ruta11 string `xml:"Ruta11,omitempty"`
		Ruta12 string `xml:"Ruta12,omitempty"`
	} `xml:"UtgaendeMoms"`

	ReverseCharge struct {
		Ruta20 string `xml:"Ruta20,omitempty"`
		Ruta21 string `xml:"Ruta21,omitempty"`
		Ruta22 string `xml:"Ruta22,omitempty"`
		Ruta23 string `xml:"Ruta23,omitempty"`
		Ruta24 string `xml:"Ruta24,omitempty"`
	} `xml:"OmvandSkattskyldighet"`

	ReverseChargeVat struct {
		Ruta30 string `xml:"Ruta30,omitempty"`
		Ruta31 string `xml:"Ruta31,omitempty"`
		Ruta32 string `xml:"Ruta32,omitempty"`
	} `xml:"UtgaendeMomsOmvand"`

	ExemptSales struct {
		Ruta35 string `xml:"Ruta35,omitempty"`
		Ruta36 string `xml:"Ruta36,omitempty"`
		Ruta37 string `xml:"Ruta37,omitempty"`
		Ruta38 string `xml:"Ruta38,omitempty"`
		Ruta39 string `xml:"Ruta39,omitempty"`
		Ruta40 string `xml:"Ruta40,omitempty"`
		Ruta41 string `xml:"Ruta41,omitempty"`
		Ruta42 string `xml:"Ruta42,omitempty"`
	} `xml:"UndantagenForsaljning"`

	InputVat struct {
		Ruta48 string `xml:"Ruta48,omitempty"`
	} `xml:"IngaendeMoms"`

	Result struct {
		Ruta49 string `xml:"Ruta49"`
	} `xml:"Resultat"`

	Import struct {
		Ruta50 string `xml:"Ruta50,omitempty"`
		Ruta60 string `xml:"Ruta60,omitempty"`
		Ruta61 string `xml:"Ruta61,omitempty"`
		Ruta62 string `xml:"Ruta62,omitempty"`
	} `xml:"Import"`
}

type eskdDocument struct {
	XMLName xml.Name `xml:"SKVDeklaration"`

	Sender struct {
		Program string `xml:"Program"`
		OrgNr   string `xml:"OrgNr"`
		Created string `xml:"Skapad"`
	} `xml:"Avsandare"`

	Declaration moms
}

// Exporter serializes reports for filing.
type Exporter struct {
	ProgramName string
	Now         func() time.Time // defaults to time.Now
}

func NewExporter(programName string) *Exporter {
	return &Exporter{ProgramName: programName, Now: time.Now}
}

// WriteXML renders the report as the fixed-schema filing document.
func (x *Exporter) WriteXML(r *Report, orgNumber string) ([]byte, error) {
	now := time.Now
	if x.Now != nil {
		now = x.Now
	}

	var doc eskdDocument
	doc.Sender.Program = x.ProgramName
	doc.Sender.OrgNr = orgNumber
	doc.Sender.Created = now().UTC().Format(time.RFC3339)

	d := &doc.Declaration
	d.Period = r.Period

	d.Sales.Ruta05 = box(r.Ruta05)
	d.Sales.Ruta06 = box(r.Ruta06)
	d.Sales.Ruta07 = box(r.Ruta07)
	d.Sales.Ruta08 = box(r.Ruta08)

	d.OutputVat.Ruta10 = box(r.Ruta10)
	d.OutputVat.Ruta11 = box(r.Ruta11)
	d.OutputVat.Ruta12 = box(r.Ruta12)

	d.ReverseCharge.Ruta20 = box(r.Ruta20)
	d.ReverseCharge.Ruta21 = box(r.Ruta21)
	d.ReverseCharge.Ruta22 = box(r.Ruta22)
	d.ReverseCharge.Ruta23 = box(r.Ruta23)
	d.ReverseCharge.Ruta24 = box(r.Ruta24)

	d.ReverseChargeVat.Ruta30 = box(r.Ruta30)
	d.ReverseChargeVat.Ruta31 = box(r.Ruta31)
	d.ReverseChargeVat.Ruta32 = box(r.Ruta32)

	d.ExemptSales.Ruta35 = box(r.Ruta35)
	d.ExemptSales.Ruta36 = box(r.Ruta36)
	d.ExemptSales.Ruta37 = box(r.Ruta37)
	d.ExemptSales.Ruta38 = box(r.Ruta38)
	d.ExemptSales.Ruta39 = box(r.Ruta39)
	d.ExemptSales.Ruta40 = box(r.Ruta40)
	d.ExemptSales.Ruta41 = box(r.Ruta41)
	d.ExemptSales.Ruta42 = box(r.Ruta42)

	d.InputVat.Ruta48 = box(r.Ruta48)
	d.Result.Ruta49 = r.Ruta49.String()

	d.Import.Ruta50 = box(r.Ruta50)
	d.Import.Ruta60 = box(r.Ruta60)
	d.Import.Ruta61 = box(r.Ruta61)
	d.Import.Ruta62 = box(r.Ruta62)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// box formats a populated box value; zero boxes are omitted.
func box(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
