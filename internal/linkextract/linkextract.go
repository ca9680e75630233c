// Package linkextract performs a single pass over a fetched HTML body to
// recover outbound links: strip noise (script/style/noscript), pull every
// anchor href, resolve it against the page's base URL, and reject anything
// matching the length/extension skip-list.
package linkextract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".css": true, ".js": true, ".woff": true,
	".woff2": true, ".ttf": true, ".eot": true, ".mp4": true, ".mp3": true,
	".avi": true, ".mov": true, ".zip": true, ".tar": true, ".gz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
}

const maxURLLength = 2048

// Extract returns the set of distinct, resolved HTTP(S) URLs
// discovered in body's anchor tags, relative to base.
func Extract(body []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	stripNoise(doc)

	seen := make(map[string]bool)
	var out []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		resolved := resolve(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		if rejected(resolved) {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	})

	return out
}

// stripNoise removes script, style, and noscript elements so they never leak
// into anchor discovery.
func stripNoise(doc *goquery.Document) {
	doc.Find("script, style, noscript").Remove()
}

func resolve(base *url.URL, href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}
	if resolved.Scheme != "" && resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func rejected(rawURL string) bool {
	if len(rawURL) > maxURLLength {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := strings.ToLower(parsed.Path)
	for ext := range skippedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
