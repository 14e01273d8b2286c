package browser

import (
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// SearchResult is one organic search hit.
type SearchResult struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// extractText returns the article title and readable text of a page,
// falling back to all visible body text when readability finds no article.
func extractText(doc, pageURL string) (string, string) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(doc), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.Title, collapseSpace(article.TextContent)
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", ""
	}
	var sb strings.Builder
	visibleText(root, &sb)
	return "", collapseSpace(sb.String())
}

func visibleText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "head", "template":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, sb)
	}
}

// parseSearchResults collects links whose anchor contains an <h3>, the
// shape of organic results on a Google results page.
func parseSearchResults(doc string, limit int) []SearchResult {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return []SearchResult{}
	}
	results := make([]SearchResult, 0, limit)
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if h3 := findElement(n, "h3"); h3 != nil {
				link := resultLink(attr(n, "href"))
				title := collapseSpace(nodeText(h3))
				if link != "" && title != "" && !seen[link] {
					seen[link] = true
					results = append(results, SearchResult{Title: title, Link: link})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// resultLink unwraps Google's /url?q= redirects and drops relative links.
func resultLink(href string) string {
	if strings.HasPrefix(href, "/url?") {
		if u, err := url.Parse(href); err == nil {
			href = u.Query().Get("q")
		}
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	return href
}

func findElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
