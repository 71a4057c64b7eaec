// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/httpx"
	"golang.org/x/net/html"
)

// browserUserAgent mimics desktop Chrome. Several campus CMS installs
// serve an error page to unrecognized agents.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const fetchTimeout = 30 * time.Second

// FetchPage retrieves the raw HTML of an event page.
func FetchPage(ctx context.Context, client httpx.BasicClient, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "fetching %s", pageURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetching %s: %s", pageURL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response body")
	}
	return string(body), nil
}

// strippedElements are subtrees that never carry event copy.
var strippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
}

// ExtractText flattens page HTML into newline-separated text.
// Boilerplate subtrees are removed, every line is trimmed, and blank
// lines are dropped.
func ExtractText(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", errors.Wrap(err, "parsing html")
	}
	var chunks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			chunks = append(chunks, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	var lines []string
	for _, line := range strings.Split(strings.Join(chunks, "\n"), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n"), nil
}
