package domain

import "time"

// RequestEcho is the part of a response that repeats what was asked.
type RequestEcho struct {
	Query        string `json:"query"`
	Page         int    `json:"page"`
	MaxPassages  int    `json:"maxpassages"`
	Grouped      bool   `json:"grouped"`
	GroupsOnPage int    `json:"groups_on_page"`
	DocsInGroup  int    `json:"results_in_group"`
}

type SearchResult struct {
	Request    RequestEcho `json:"-"`
	Found      int         `json:"found"`
	FoundHuman string      `json:"found_human"`
	Groups     []Group     `json:"groups"`
}

// Empty reports whether nothing has been parsed into r.
func (r SearchResult) Empty() bool {
	return len(r.Groups) == 0
}

type Group struct {
	Name  string     `json:"name"`
	Count int        `json:"count"`
	Docs  []Document `json:"docs"`
}

type Document struct {
	URL          string     `json:"url"`
	Domain       string     `json:"domain"`
	Title        string     `json:"title"`
	Headline     string     `json:"headline"`
	Modified     *time.Time `json:"modified"`
	Size         int        `json:"size"`
	MimeType     string     `json:"type"`
	Charset      string     `json:"charset"`
	Language     string     `json:"language"`
	SavedCopyURL string     `json:"saved_copy"`
	Passages     []string   `json:"passages"`
}
