package letters

import (
	"bytes"
	"strings"
)

type htmlLine struct {
	Bold string
	Text string
}

type htmlView struct {
	Subject    string
	Paragraphs [][]htmlLine
}

// renderHTML turns a plain-text body into paragraphs split on blank lines.
// A leading "**label**" on a line becomes bold.
func renderHTML(subject, body string) (string, error) {
	view := htmlView{Subject: subject}
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.Trim(para, "\n")
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		out := make([]htmlLine, len(lines))
		for i, l := range lines {
			out[i] = splitBold(l)
		}
		view.Paragraphs = append(view.Paragraphs, out)
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func splitBold(line string) htmlLine {
	rest, ok := strings.CutPrefix(line, "**")
	if !ok {
		return htmlLine{Text: line}
	}
	bold, after, ok := strings.Cut(rest, "**")
	if !ok {
		return htmlLine{Text: line}
	}
	return htmlLine{Bold: bold, Text: after}
}
