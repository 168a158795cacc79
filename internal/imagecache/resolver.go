package imagecache

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ResolveImageURL returns the best product image URL in html, resolved
// against pageURL. Open Graph tags win over Twitter cards, which win over
// link rels, which win over the first acceptable <img>.
func ResolveImageURL(html []byte, pageURL string, rules Rules) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false
	}

	for _, prop := range rules.OpenGraphProperties {
		if u, ok := firstMeta(doc, "property", prop, base); ok {
			return u, true
		}
	}
	for _, name := range rules.TwitterNames {
		if u, ok := firstMeta(doc, "name", name, base); ok {
			return u, true
		}
		if u, ok := firstMeta(doc, "property", name, base); ok {
			return u, true
		}
	}
	if u, ok := firstLinkRel(doc, rules.LinkRels, base); ok {
		return u, true
	}
	return firstImage(doc, rules, base)
}

func firstMeta(doc *goquery.Document, attr, value string, base *url.URL) (string, bool) {
	var found string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		key, _ := s.Attr(attr)
		if !strings.EqualFold(strings.TrimSpace(key), value) {
			return true
		}
		content, _ := s.Attr("content")
		if u, ok := resolve(base, content); ok {
			found = u
			return false
		}
		return true
	})
	return found, found != ""
}

func firstLinkRel(doc *goquery.Document, rels []string, base *url.URL) (string, bool) {
	if len(rels) == 0 {
		return "", false
	}
	var found string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if !relMatches(rel, rels) {
			return true
		}
		href, _ := s.Attr("href")
		if u, ok := resolve(base, href); ok {
			found = u
			return false
		}
		return true
	})
	return found, found != ""
}

func relMatches(rel string, wanted []string) bool {
	for _, token := range strings.Fields(rel) {
		for _, w := range wanted {
			if strings.EqualFold(token, w) {
				return true
			}
		}
	}
	return false
}

func firstImage(doc *goquery.Document, rules Rules, base *url.URL) (string, bool) {
	var found string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := imageSource(s, rules.ImageAttrs)
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			return true
		}
		if denied(src, rules.Denylist) {
			return true
		}
		if u, ok := resolve(base, src); ok {
			found = u
			return false
		}
		return true
	})
	return found, found != ""
}

func imageSource(s *goquery.Selection, attrs []string) string {
	for _, attr := range attrs {
		if v, ok := s.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func denied(src string, denylist []string) bool {
	lower := strings.ToLower(src)
	for _, term := range denylist {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// resolve turns a reference into an absolute URL. The scheme is checked by
// the fetcher, not here.
func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(u)
	if !abs.IsAbs() {
		return "", false
	}
	return abs.String(), true
}
