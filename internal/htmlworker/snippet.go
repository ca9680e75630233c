package htmlworker

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// docSelectors is a flattened, priority-ordered list of documentation
// framework container selectors, tried after the semantic-element layer and
// before the text-density fallback.
var docSelectors = []string{
	".content", ".doc-content", ".markdown-body", "#docs-content",
	".rst-content", ".theme-doc-markdown", ".md-content",
	".docMainContainer", ".book-body", ".markdown-section",
	".md-main__inner", ".document", ".theme-default-content",
	".content__default", "#main", ".post-content", ".article-content",
	".entry-content",
}

var chromeSelectors = "nav, header, footer, aside, script, style, noscript"

var chromeAttributeKeywords = []string{
	"nav", "sidebar", "menu", "breadcrumb", "search", "footer", "header",
	"cookie", "consent", "version", "language", "theme", "edit", "github",
}

const minMeaningfulTextLen = 80
const maxSnippetLen = 280

// extractSnippet finds the best content container in doc and returns a
// short plain-text snippet from it. A non-empty customSelector (from a
// per-host domain_configs.json override) is tried before the semantic
// containers, known documentation selectors, and chrome-stripped fallback
// over body, in that order.
func extractSnippet(doc *goquery.Document, customSelector string) string {
	if customSelector != "" {
		if text, ok := meaningfulText(doc.Find(customSelector).First()); ok {
			return text
		}
	}
	for _, sel := range []string{"main", "article", "[role='main']"} {
		if text, ok := meaningfulText(doc.Find(sel).First()); ok {
			return text
		}
	}
	for _, sel := range docSelectors {
		if text, ok := meaningfulText(doc.Find(sel).First()); ok {
			return text
		}
	}
	return fallbackSnippet(doc)
}

func meaningfulText(sel *goquery.Selection) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	text := normalizeWhitespace(sel.Text())
	if len(text) < minMeaningfulTextLen {
		return "", false
	}
	return truncate(text, maxSnippetLen), true
}

// fallbackSnippet strips chrome elements and elements whose class/id
// contains a chrome keyword, then returns the body's remaining text. It is
// the last-resort layer and mutates doc; callers must not reuse doc for
// link extraction afterward (the HTML worker parses a fresh document for
// that instead).
func fallbackSnippet(doc *goquery.Document) string {
	doc.Find(chromeSelectors).Remove()
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		combined := strings.ToLower(class + " " + id)
		for _, keyword := range chromeAttributeKeywords {
			if strings.Contains(combined, keyword) {
				sel.Remove()
				return
			}
		}
	})
	text := normalizeWhitespace(doc.Find("body").First().Text())
	return truncate(text, maxSnippetLen)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
