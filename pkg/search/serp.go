package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBaseURL is the search endpoint queried by rendered sessions.
const DefaultBaseURL = "https://www.google.com/search"

// buildURL maps a normalized request onto search URL parameters.
func buildURL(base string, req Request) string {
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("num", strconv.Itoa(req.Limit))
	if req.Offset > 0 {
		params.Set("start", strconv.Itoa(req.Offset))
	}
	if req.Language != "" {
		params.Set("hl", req.Language)
	}
	if req.Safe {
		params.Set("safe", "active")
	} else {
		params.Set("safe", "off")
	}
	if req.Type == TypeImage {
		params.Set("tbm", "isch")
	}

	return base + "?" + params.Encode()
}

// organicSelectors lists result-container selectors across page generations,
// tried in order until one yields results.
var organicSelectors = []string{
	"div.MjjYud",
	"div.tF2Cxc",
	"div.g",
}

// captchaMarkers identify interstitial challenge pages. Their presence turns
// an empty parse into a retryable failure instead of an empty result set.
var captchaMarkers = []string{
	"unusual traffic",
	"captcha-form",
	"g-recaptcha",
	"/sorry/index",
}

// parseResults extracts organic results from rendered SERP HTML.
func parseResults(html string, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	for _, selector := range organicSelectors {
		results := parseOrganic(doc, selector, limit)
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

// parseOrganic reads result blocks beneath one container selector.
func parseOrganic(doc *goquery.Document, selector string, limit int) []Result {
	var results []Result
	seen := make(map[string]bool)

	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		if title == "" {
			return true
		}

		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok {
			return true
		}
		link := cleanResultLink(href)
		if link == "" || seen[link] {
			return true
		}

		results = append(results, Result{
			Title:   title,
			Link:    link,
			Snippet: findSnippet(s),
		})
		seen[link] = true
		return len(results) < limit
	})

	return results
}

// snippetSelectors are tried in order inside one result block.
var snippetSelectors = []string{
	"div.VwiC3b",
	"div.IsZvec",
	"span.aCOpRe",
	"div[data-sncf]",
}

func findSnippet(s *goquery.Selection) string {
	for _, selector := range snippetSelectors {
		if text := strings.TrimSpace(s.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// cleanResultLink unwraps redirect-style hrefs and drops non-HTTP targets.
func cleanResultLink(href string) string {
	href = strings.TrimSpace(href)

	// Static result pages route links through /url?q=<target>.
	if strings.HasPrefix(href, "/url?") {
		parsed, err := url.Parse(href)
		if err != nil {
			return ""
		}
		href = parsed.Query().Get("q")
	}

	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	return href
}

// parseImages extracts image results. Image pages carry far less stable
// markup than organic ones, so this stays heuristic: anchor blocks that wrap
// an img with alt text.
func parseImages(html string, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var results []Result
	seen := make(map[string]bool)

	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link := imageTarget(href)
		if link == "" || seen[link] {
			return true
		}

		img := s.Find("img").First()
		if img.Length() == 0 {
			return true
		}
		title := strings.TrimSpace(img.AttrOr("alt", ""))
		if title == "" {
			return true
		}

		results = append(results, Result{Title: title, Link: link})
		seen[link] = true
		return len(results) < limit
	})

	return results, nil
}

// imageTarget pulls the full-size image URL out of an imgres href.
func imageTarget(href string) string {
	idx := strings.Index(href, "imgres?")
	if idx < 0 {
		return ""
	}

	values, err := url.ParseQuery(href[idx+len("imgres?"):])
	if err != nil {
		return ""
	}

	for _, key := range []string{"imgurl", "imgrefurl"} {
		if target := values.Get(key); strings.HasPrefix(target, "http") {
			return target
		}
	}
	return ""
}

// hasCaptchaMarker reports whether the page looks like a challenge
// interstitial.
func hasCaptchaMarker(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
