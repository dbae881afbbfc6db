package news

import (
	"encoding/json"
	"strings"
)

// Defaults applied when the upstream record omits a field.
const (
	DefaultTitle     = "No Title"
	DefaultLink      = "#"
	DefaultPublisher = "Unknown Source"
)

// Article is one normalized search result. Link is the dedup key.
type Article struct {
	Title         string
	Link          string
	Snippet       string
	Publisher     string
	ImageURL      string
	RelatedTopics []string
}

// Schedulable reports whether the article carries a usable link. Links with
// line breaks cannot be stored in the ledger and are never scheduled.
func (a Article) Schedulable() bool {
	l := strings.TrimSpace(a.Link)
	return l != "" && l != DefaultLink && !strings.ContainsAny(l, "\r\n")
}

// rawArticle mirrors the API record. Missing keys stay nil so the defaults
// can be told apart from an explicitly empty string.
type rawArticle struct {
	Title         *string `json:"title"`
	Link          *string `json:"link"`
	Snippet       *string `json:"snippet"`
	SourceName    *string `json:"source_name"`
	PhotoURL      *string `json:"photo_url"`
	RelatedTopics []topic `json:"related_topics"`
}

// topic accepts either a bare string or an object with a "name" key.
type topic string

func (t *topic) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = topic(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*t = topic(obj.Name)
		return nil
	}
	// Numbers, nulls and nested arrays carry no name.
	*t = ""
	return nil
}

func (r rawArticle) normalize() Article {
	a := Article{
		Title:     orDefault(r.Title, DefaultTitle),
		Link:      orDefault(r.Link, DefaultLink),
		Snippet:   orDefault(r.Snippet, ""),
		Publisher: orDefault(r.SourceName, DefaultPublisher),
		ImageURL:  strings.TrimSpace(orDefault(r.PhotoURL, "")),
	}
	for _, t := range r.RelatedTopics {
		if name := strings.TrimSpace(string(t)); name != "" {
			a.RelatedTopics = append(a.RelatedTopics, name)
		}
	}
	return a
}

func orDefault(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
