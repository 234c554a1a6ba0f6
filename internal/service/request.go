package service

import (
	"encoding/xml"
	"fmt"
	"net/url"

	"github.com/kitbuilder587/yxml/internal/parser"
)

const (
	MaxPassages      = 5
	MaxGroupsOnPage  = 100
	MaxDocsInGroup   = 3
	SampleQuery      = "e48a2b93de1740f48f6de0d45dc4192a"
	searchPath       = "/search/xml"
	captchaCheckPath = "/xcheckcaptcha"
)

type searchRequest struct {
	XMLName     xml.Name  `xml:"request"`
	Query       string    `xml:"query"`
	MaxPassages int       `xml:"maxpassages"`
	Groupings   groupings `xml:"groupings"`
}

type groupings struct {
	GroupBy groupBy `xml:"groupby"`
}

type groupBy struct {
	Attr         string `xml:"attr,attr"`
	Mode         string `xml:"mode,attr"`
	GroupsOnPage int    `xml:"groups-on-page,attr"`
	DocsInGroup  int    `xml:"docs-in-group,attr"`
}

// buildRequest returns the POST body for an already normalized query.
func buildRequest(query string, grouped bool) ([]byte, error) {
	gb := groupBy{Attr: "", Mode: "flat", GroupsOnPage: MaxGroupsOnPage, DocsInGroup: 1}
	if grouped {
		gb = groupBy{Attr: parser.GroupingAttr, Mode: "deep", GroupsOnPage: MaxGroupsOnPage, DocsInGroup: MaxDocsInGroup}
	}

	body, err := xml.Marshal(searchRequest{
		Query:       query,
		MaxPassages: MaxPassages,
		Groupings:   groupings{GroupBy: gb},
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return body, nil
}

type endpoints struct {
	search string
	limits string
	verify string
	sample string
}

func buildEndpoints(cfg Config) endpoints {
	base := cfg.baseURL() + searchPath
	user, key := url.QueryEscape(cfg.User), url.QueryEscape(cfg.APIKey)

	return endpoints{
		search: fmt.Sprintf("%s?l10n=%s&user=%s&key=%s&filter=none", base, cfg.Mode.Locale(), user, key),
		limits: fmt.Sprintf("%s?action=limits-info&user=%s&key=%s", base, user, key),
		verify: cfg.baseURL() + captchaCheckPath,
		sample: fmt.Sprintf("%s?query=%s&user=%s&key=%s&showmecaptcha=yes", base, SampleQuery, user, key),
	}
}
