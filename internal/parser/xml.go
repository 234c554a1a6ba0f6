package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/kitbuilder587/yxml/internal/domain"
)

// Load parses body and returns its root element.
func Load(body string) (*xmlquery.Node, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty document", domain.ErrMalformedXML)
	}

	doc, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedXML, err)
	}

	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: no root element", domain.ErrMalformedXML)
}

// Text - текст узла по xpath, "" если узла нет
func Text(node *xmlquery.Node, expr string) string {
	if node == nil {
		return ""
	}
	n := xmlquery.FindOne(node, expr)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

// Int - как Text, но число; отсутствующее или битое значение -> 0
func Int(node *xmlquery.Node, expr string) int {
	return atoi(Text(node, expr))
}

func Attr(node *xmlquery.Node, name string) string {
	if node == nil {
		return ""
	}
	return strings.TrimSpace(node.SelectAttr(name))
}

func AttrInt(node *xmlquery.Node, name string) int {
	return atoi(Attr(node, name))
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
