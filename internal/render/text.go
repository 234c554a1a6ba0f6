package render

import (
	"fmt"
	"strings"

	"github.com/kitbuilder587/yxml/internal/domain"
)

// Text formats res as a plain report: a FOUND header, then one block per
// domain group with the documents indented below it.
func Text(res *domain.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("FOUND: %d\n%s\n", res.Found, res.FoundHuman))

	for _, g := range res.Groups {
		sb.WriteString(fmt.Sprintf("\n\n----------------\nDOMAIN %q: %d\n", g.Name, g.Count))
		for _, d := range g.Docs {
			writeDoc(&sb, d)
		}
	}
	return sb.String()
}

func writeDoc(sb *strings.Builder, d domain.Document) {
	modified := ""
	if d.Modified != nil {
		modified = d.Modified.Format(timeLayout)
	}

	sb.WriteString("\n")
	field(sb, "URL", d.URL)
	field(sb, "TITLE", d.Title)
	field(sb, "HEADLINE", d.Headline)
	field(sb, "LANGUAGE", d.Language)
	field(sb, "MODIFIED", modified)
	// пассажи - каждый на своей строке с двойным отступом
	field(sb, "PASSAGES", strings.Join(d.Passages, "\n\t\t"))
	field(sb, "SIZE", fmt.Sprint(d.Size))
	field(sb, "TYPE", d.MimeType)
	field(sb, "CHARSET", d.Charset)
	field(sb, "SAVED COPY", d.SavedCopyURL)
}

func field(sb *strings.Builder, name, value string) {
	sb.WriteString("\t")
	sb.WriteString(name)
	sb.WriteString(": ")
	sb.WriteString(value)
	sb.WriteString("\n")
}
