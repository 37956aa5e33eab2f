// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const duckduckgoHTMLEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGoProvider implements SnippetProvider against DuckDuckGo's
// no-JS HTML results page, the free no-API-key fallback original_source's
// DuckDuckGoProvider uses (it wraps the duckduckgo-search Python package;
// no equivalent client exists in the pack's dependency set, so this scrapes
// the same public HTML endpoint directly using golang.org/x/net/html).
type DuckDuckGoProvider struct {
	client *http.Client
}

func NewDuckDuckGoProvider(timeout time.Duration) *DuckDuckGoProvider {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGoProvider{client: &http.Client{Timeout: timeout}}
}

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, duckduckgoHTMLEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build duckduckgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; kbrag-web-retriever/1.0)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo search %q: status %d", query, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo results: %w", err)
	}

	results := parseDuckDuckGoResults(doc, maxResults)
	return results, nil
}

func (p *DuckDuckGoProvider) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, duckduckgoHTMLEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// parseDuckDuckGoResults walks the results page looking for
// a.result__a (title+link) and a.result__snippet (snippet) anchors, in
// document order, pairing them positionally.
func parseDuckDuckGoResults(doc *html.Node, maxResults int) []Result {
	var results []Result
	var pending Result
	havePending := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			class := classOf(n)
			if strings.Contains(class, "result__a") {
				if havePending {
					results = append(results, pending)
				}
				pending = Result{URL: attrOf(n, "href"), Title: textOf(n), Provider: "duckduckgo"}
				havePending = true
			} else if strings.Contains(class, "result__snippet") && havePending {
				pending.Snippet = textOf(n)
				results = append(results, pending)
				havePending = false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if havePending && len(results) < maxResults {
		results = append(results, pending)
	}

	for i := range results {
		results[i].Rank = i + 1
		results[i].Domain = domainOf(results[i].URL)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

func classOf(n *html.Node) string {
	return attrOf(n, "class")
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
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
	return strings.TrimSpace(sb.String())
}

var _ SnippetProvider = (*DuckDuckGoProvider)(nil)
