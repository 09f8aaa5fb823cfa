package probe

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// sanitize parses untrusted page HTML and strips everything executable:
// script/style/noscript subtrees and on* event-handler attributes. All
// structural traversal happens on the returned document, never the raw body.
func sanitize(body []byte) (*goquery.Document, []byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			node.Attr = stripEventHandlers(node.Attr)
		}
	})

	clean, err := doc.Html()
	if err != nil {
		return nil, nil, fmt.Errorf("render sanitized html: %w", err)
	}
	return doc, []byte(clean), nil
}

func stripEventHandlers(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if key == "href" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
