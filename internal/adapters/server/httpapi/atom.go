package httpapi

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/hylla/utsikt/internal/app"
)

// atomFeed is the Atom 1.0 document shape for build feeds.
type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Link    atomLink    `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomEntry struct {
	Title   string   `xml:"title"`
	ID      string   `xml:"id"`
	Updated string   `xml:"updated"`
	Link    atomLink `xml:"link"`
}

// writeAtom renders one build feed as an Atom document. The alternate
// link carries the externally visible view URL; the feed ID stays
// host-independent.
func writeAtom(w http.ResponseWriter, feed app.Feed, alternate string) {
	if alternate == "" {
		alternate = "/" + feed.Link
	}
	updated := time.Now().UTC()
	if len(feed.Builds) > 0 {
		updated = feed.Builds[0].Timestamp.UTC()
	}
	doc := atomFeed{
		Title:   feed.Title,
		ID:      "urn:utsikt:feed:" + feed.Link,
		Updated: updated.Format(time.RFC3339),
		Link:    atomLink{Href: alternate, Rel: "alternate"},
		Entries: make([]atomEntry, 0, len(feed.Builds)),
	}
	for _, build := range feed.Builds {
		doc.Entries = append(doc.Entries, atomEntry{
			Title:   fmt.Sprintf("%s #%d (%s)", build.Job, build.Number, build.Result),
			ID:      "urn:utsikt:build:" + build.BuildID,
			Updated: build.Timestamp.UTC().Format(time.RFC3339),
			Link:    atomLink{Href: fmt.Sprintf("/job/%s/%d/", build.Job, build.Number)},
		})
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		// Headers are already out; nothing more to do than drop the rest.
		return
	}
	_, _ = w.Write([]byte("\n"))
}
