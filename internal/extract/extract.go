// Package extract pulls page content out of fetched HTML according to a
// site's configured selector and extraction method.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/tangentleman/docpull/internal/scrape"
)

var reWhitespace = regexp.MustCompile(`[ \t]+`)
var reBlankLines = regexp.MustCompile(`\n{3,}`)

// Content applies the site's extraction method to the raw HTML of pageURL.
func Content(rawHTML string, site scrape.SiteConfig, pageURL string) (string, error) {
	switch site.Method {
	case scrape.ExtractReadability:
		return readable(rawHTML, pageURL)
	case scrape.ExtractTextContent:
		return selectorText(rawHTML, site.Selector)
	case scrape.ExtractInnerHTML, "":
		return selectorHTML(rawHTML, site.Selector)
	default:
		return "", fmt.Errorf("unknown extract method %q", site.Method)
	}
}

// Links collects anchor targets from raw HTML, resolved against baseURL.
// Only same-host URLs survive; pattern, when set, is a substring filter.
// Query strings, fragments, and trailing slashes are stripped so the same
// page never appears twice. The result is sorted and unique.
func Links(rawHTML, baseURL, pattern string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !strings.EqualFold(resolved.Host, base.Host) {
			return
		}
		link := cleanLink(resolved)
		if link == "" {
			return
		}
		if pattern != "" && !strings.Contains(link, pattern) {
			return
		}
		seen[link] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	sort.Strings(links)
	return links, nil
}

func cleanLink(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.Fragment = ""
	return strings.TrimSuffix(clean.String(), "/")
}

func selectorHTML(rawHTML, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(selectorOrBody(selector)).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("selector %q matched nothing", selector)
	}
	html, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("render selection: %w", err)
	}
	return strings.TrimSpace(html), nil
}

func selectorText(rawHTML, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(selectorOrBody(selector)).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("selector %q matched nothing", selector)
	}
	return normalize(sel.Text()), nil
}

func readable(rawHTML, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}
	text := normalize(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("readability found no content")
	}
	if article.Title != "" {
		return article.Title + "\n\n" + text, nil
	}
	return text, nil
}

func selectorOrBody(selector string) string {
	if strings.TrimSpace(selector) == "" {
		return "body"
	}
	return selector
}

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reWhitespace.ReplaceAllString(line, " "))
	}
	out := strings.Join(lines, "\n")
	out = reBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
