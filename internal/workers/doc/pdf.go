package doc

import (
	"bytes"
	"fmt"
	"strings"
)

// linesPerPage matches the deterministic page-break line the spec calls for:
// a new page starts once ~46 logical markdown lines have been laid out on
// the current one, regardless of heading size.
const linesPerPage = 46

type pdfLine struct {
	kind string // "h1" | "h2" | "h3" | "blank" | "body"
	text string
}

func classifyLine(raw string) pdfLine {
	trimmed := strings.TrimRight(raw, "\r")
	switch {
	case strings.TrimSpace(trimmed) == "":
		return pdfLine{kind: "blank"}
	case strings.HasPrefix(trimmed, "### "):
		return pdfLine{kind: "h3", text: strings.TrimPrefix(trimmed, "### ")}
	case strings.HasPrefix(trimmed, "## "):
		return pdfLine{kind: "h2", text: strings.TrimPrefix(trimmed, "## ")}
	case strings.HasPrefix(trimmed, "# "):
		return pdfLine{kind: "h1", text: strings.TrimPrefix(trimmed, "# ")}
	default:
		return pdfLine{kind: "body", text: trimmed}
	}
}

func fontSizeFor(kind string) float64 {
	switch kind {
	case "h1":
		return 20
	case "h2":
		return 16
	case "h3":
		return 13
	default:
		return 11
	}
}

// RenderPDF hand-rolls a minimal single-font, left-aligned PDF: one content
// stream per page of up to linesPerPage markdown lines, H1-H3 rendered at
// larger sizes than body text, blank lines consuming a line of vertical
// space without drawing text.
func RenderPDF(markdown string) ([]byte, error) {
	rawLines := strings.Split(markdown, "\n")
	lines := make([]pdfLine, 0, len(rawLines))
	for _, l := range rawLines {
		lines = append(lines, classifyLine(l))
	}
	if len(lines) == 0 {
		lines = []pdfLine{{kind: "blank"}}
	}

	var pages [][]pdfLine
	for i := 0; i < len(lines); i += linesPerPage {
		end := i + linesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[i:end])
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	type obj struct {
		offset int
	}
	var objs []obj
	writeObj := func(id int, body string) {
		for len(objs) < id {
			objs = append(objs, obj{})
		}
		objs[id-1] = obj{offset: buf.Len()}
		buf.WriteString(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", id, body))
	}

	// Object numbering: 1 catalog, 2 pages, 3 font, then 2 objects (page + stream) per page.
	pageObjIDs := make([]int, len(pages))
	nextID := 4
	for i := range pages {
		pageObjIDs[i] = nextID
		nextID += 2
	}
	totalObjs := nextID - 1

	kids := make([]string, len(pages))
	for i, id := range pageObjIDs {
		kids[i] = fmt.Sprintf("%d 0 R", id)
	}

	objs = make([]obj, totalObjs)

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, page := range pages {
		pageID := pageObjIDs[i]
		streamID := pageID + 1
		content := renderPageContent(page)
		writeObj(pageID, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /MediaBox [0 0 612 792] /Contents %d 0 R >>",
			streamID,
		))
		writeObj(streamID, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xrefOffset := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n", totalObjs+1))
	buf.WriteString("0000000000 65535 f \n")
	for _, o := range objs {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", o.offset))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF", totalObjs+1, xrefOffset))

	return buf.Bytes(), nil
}

func renderPageContent(lines []pdfLine) string {
	var sb strings.Builder
	sb.WriteString("BT\n")
	y := 760.0
	for _, l := range lines {
		size := fontSizeFor(l.kind)
		lineHeight := size + 4
		y -= lineHeight
		if l.kind == "blank" {
			continue
		}
		sb.WriteString(fmt.Sprintf("/F1 %.0f Tf\n", size))
		sb.WriteString(fmt.Sprintf("1 0 0 1 56 %.2f Tm\n", y))
		sb.WriteString(fmt.Sprintf("(%s) Tj\n", escapePDFString(l.text)))
	}
	sb.WriteString("ET")
	return sb.String()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
