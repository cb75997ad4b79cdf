package doc

import (
	"strconv"
	"strings"
)

// RenderRTF hand-rolls a minimal RTF document: the same H1-H3/body/blank
// line classification as RenderPDF, expressed as RTF control words (\fs for
// font size, \par for paragraph breaks) instead of PDF content streams.
func RenderRTF(markdown string) []byte {
	var sb strings.Builder
	sb.WriteString(`{\rtf1\ansi\deff0 {\fonttbl{\f0 Helvetica;}}` + "\n")
	sb.WriteString(`\f0` + "\n")

	for _, raw := range strings.Split(markdown, "\n") {
		line := classifyLine(raw)
		if line.kind == "blank" {
			sb.WriteString(`\par` + "\n")
			continue
		}
		size := rtfHalfPoints(line.kind)
		sb.WriteString(`\fs` + strconv.Itoa(size) + " ")
		if line.kind == "h1" || line.kind == "h2" || line.kind == "h3" {
			sb.WriteString(`\b `)
			sb.WriteString(escapeRTF(line.text))
			sb.WriteString(`\b0`)
		} else {
			sb.WriteString(escapeRTF(line.text))
		}
		sb.WriteString(`\par` + "\n")
	}
	sb.WriteString("}")
	return []byte(sb.String())
}

// rtfHalfPoints converts a line kind into RTF's half-point font-size units.
func rtfHalfPoints(kind string) int {
	switch kind {
	case "h1":
		return 40
	case "h2":
		return 32
	case "h3":
		return 26
	default:
		return 22
	}
}

func escapeRTF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `{`, `\{`, `}`, `\}`)
	return r.Replace(s)
}
