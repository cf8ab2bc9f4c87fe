package report

import (
	"fmt"
	"io"
	"os"

	"testflow_backend/models"

	"github.com/go-pdf/fpdf"
)

const (
	margin     = 25.4 // one inch, in mm
	lineHeight = 6.0
	symbolSize = 2.8
	textIndent = 6.0

	utf8Family = "ReportSans"
)

// RenderOptions controls PDF output. Font holds a TrueType font used for all
// text; without it the core Helvetica font is used, which only covers cp1252.
type RenderOptions struct {
	Compress bool
	Font     []byte
}

// LoadFont reads a TrueType font file and checks that it can be embedded.
func LoadFont(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := RenderPDF(Document{Title: "font check"}, io.Discard, RenderOptions{Font: data}); err != nil {
		return nil, fmt.Errorf("font %s: %w", path, err)
	}
	return data, nil
}

type layout struct {
	pdf    *fpdf.Fpdf
	family string
	tr     func(string) string
	utf8   bool
}

func newLayout(opts RenderOptions) *layout {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(opts.Compress)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)

	l := &layout{pdf: pdf, family: "Helvetica", tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if len(opts.Font) > 0 {
		pdf.AddUTF8FontFromBytes(utf8Family, "", opts.Font)
		l.family = utf8Family
		l.tr = func(s string) string { return s }
		l.utf8 = true
	}
	return l
}

// RenderPDF lays out doc on A4 pages and writes the PDF to w.
func RenderPDF(doc Document, w io.Writer, opts RenderOptions) (err error) {
	defer func() {
		// Malformed font data panics inside the font parser.
		if r := recover(); r != nil {
			err = fmt.Errorf("render pdf: %v", r)
		}
	}()

	l := newLayout(opts)
	pdf := l.pdf
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()

	pdf.SetFont(l.family, "", 16)
	pdf.CellFormat(0, 10, l.tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(l.family, "", 12)
	pdf.MultiCell(0, lineHeight, l.tr(doc.Narrative), "", "L", false)
	pdf.Ln(lineHeight * 2)

	pdf.CellFormat(0, lineHeight, l.tr("Test Run ID: "+doc.RunID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, l.tr("Date: "+doc.Date), "", 1, "L", false, 0, "")
	pdf.Ln(lineHeight)

	pdf.CellFormat(0, lineHeight, "The remarks of our test:", "", 1, "L", false, 0, "")
	pdf.Ln(lineHeight / 2)
	for _, a := range doc.Answers {
		pdf.MultiCell(0, lineHeight, l.tr(fmt.Sprintf("%s: %s", a.QuestionTitle, a.Answer)), "", "L", false)
		pdf.Ln(lineHeight / 2)
	}
	pdf.Ln(lineHeight * 2)

	pdf.SetFont(l.family, "U", 12)
	pdf.CellFormat(0, lineHeight, "Test Results:", "", 1, "L", false, 0, "")
	pdf.SetFont(l.family, "", 12)
	pdf.Ln(lineHeight / 2)

	for _, r := range doc.Results {
		l.result(r)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// result draws one result line with its mark and remark. The whole block
// moves to a new page when it does not fit, so the mark stays with its text.
func (l *layout) result(r models.RunResult) {
	pdf := l.pdf
	left, _, right, _ := pdf.GetMargins()
	pageW, pageH := pdf.GetPageSize()
	width := pageW - right - left - textIndent

	title := l.tr(fmt.Sprintf("%d: %s", r.TestNumber, r.InstructionTitle))
	remark := ""
	if !r.Approved && r.Remark != "" {
		remark = l.tr("   Remark: " + r.Remark)
	}
	height := float64(l.lineCount(title, width)) * lineHeight
	if remark != "" {
		height += float64(l.lineCount(remark, width)) * lineHeight
	}
	if pdf.GetY()+height > pageH-margin {
		pdf.AddPage()
	}

	x, y := left, pdf.GetY()
	drawMark(pdf, x, y+(lineHeight-symbolSize)/2, r.Approved)

	pdf.SetX(x + textIndent)
	pdf.MultiCell(0, lineHeight, title, "", "L", false)
	if remark != "" {
		pdf.SetX(x + textIndent)
		pdf.MultiCell(0, lineHeight, remark, "", "L", false)
	}
	pdf.Ln(lineHeight / 2)
}

// lineCount reports how many lines MultiCell will use for txt at width w.
func (l *layout) lineCount(txt string, w float64) int {
	var n int
	if l.utf8 {
		n = len(l.pdf.SplitText(txt, w))
	} else {
		n = len(l.pdf.SplitLines([]byte(txt), w))
	}
	if n == 0 {
		return 1
	}
	return n
}

// drawMark draws a check mark for an approval and a cross for a rejection
// inside a symbolSize square at (x, y).
func drawMark(pdf *fpdf.Fpdf, x, y float64, approved bool) {
	s := symbolSize
	pdf.SetLineWidth(0.5)
	if approved {
		pdf.Line(x, y+s*5/8, x+s*3/8, y+s)
		pdf.Line(x+s*3/8, y+s, x+s, y)
		return
	}
	pdf.Line(x, y, x+s, y+s)
	pdf.Line(x, y+s, x+s, y)
}
