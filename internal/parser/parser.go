package parser

import (
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/kitbuilder587/yxml/internal/domain"
)

const (
	// GroupingAttr - значение groupby/@attr для группировки по домену
	GroupingAttr = "d"

	ModTimeLayout = "20060102T150405"
)

// Parse converts a search response document into a SearchResult.
//
// The result is always built from scratch, so a failure never carries data
// from an earlier response. An <error> inside <response> is returned as
// *domain.APIError with the raw body attached.
func Parse(body string) (*domain.SearchResult, error) {
	root, err := Load(body)
	if err != nil {
		return nil, err
	}

	response := xmlquery.FindOne(root, "response")
	if response == nil {
		return nil, &domain.SectionError{Name: "response"}
	}

	if apiErr := xmlquery.FindOne(response, "error"); apiErr != nil {
		return nil, &domain.APIError{
			Code:    AttrInt(apiErr, "code"),
			Message: Text(apiErr, "."),
			Raw:     body,
		}
	}

	request := xmlquery.FindOne(root, "request")
	if request == nil {
		return nil, &domain.SectionError{Name: "request"}
	}

	result := &domain.SearchResult{
		Request: parseRequest(request),
		Groups:  []domain.Group{},
	}

	grouping := xmlquery.FindOne(response, "results/grouping")
	if grouping == nil {
		return nil, &domain.SectionError{Name: "results/grouping"}
	}

	result.Found = Int(grouping, "found-docs[@priority='all']")
	result.FoundHuman = Text(grouping, "found-docs-human")

	for _, g := range xmlquery.Find(grouping, "group") {
		result.Groups = append(result.Groups, parseGroup(g))
	}

	return result, nil
}

func parseRequest(request *xmlquery.Node) domain.RequestEcho {
	groupby := xmlquery.FindOne(request, "groupings/groupby")

	return domain.RequestEcho{
		Query:        Text(request, "query"),
		Page:         Int(request, "page"),
		MaxPassages:  Int(request, "maxpassages"),
		Grouped:      Attr(groupby, "attr") == GroupingAttr,
		GroupsOnPage: AttrInt(groupby, "groups-on-page"),
		DocsInGroup:  AttrInt(groupby, "docs-in-group"),
	}
}

func parseGroup(g *xmlquery.Node) domain.Group {
	group := domain.Group{
		Name:  Attr(xmlquery.FindOne(g, "categ"), "name"),
		Count: Int(g, "doccount"),
		Docs:  []domain.Document{},
	}

	for _, d := range xmlquery.Find(g, "doc") {
		group.Docs = append(group.Docs, parseDocument(d))
	}
	return group
}

func parseDocument(d *xmlquery.Node) domain.Document {
	doc := domain.Document{
		URL:          Text(d, "url"),
		Domain:       Text(d, "domain"),
		Title:        Text(d, "title"),
		Headline:     Text(d, "headline"),
		Modified:     parseModTime(Text(d, "modtime")),
		Size:         Int(d, "size"),
		MimeType:     Text(d, "mime-type"),
		Charset:      Text(d, "charset"),
		Language:     Text(d, "properties/lang"),
		SavedCopyURL: Text(d, "saved-copy-url"),
		Passages:     []string{},
	}

	for _, p := range xmlquery.Find(d, "passages/passage") {
		if text := Text(p, "."); text != "" {
			doc.Passages = append(doc.Passages, text)
		}
	}
	return doc
}

func parseModTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(ModTimeLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
