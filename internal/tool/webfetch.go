package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	einotool "github.com/cloudwego/eino/components/tool"
)

const webfetchDescription = `Fetches a web page and returns its readable content.

Usage:
- url must start with http:// or https://
- Use it for articles, forecasts, schedules or documentation the user asks about
- format is "markdown" (default), "text" or "html"
- selector is an optional CSS selector that narrows an HTML page to the part you need, e.g. "main" or "#forecast"
- Pages larger than 5MB are refused; long output is truncated`

const (
	maxPageSize        = 5 << 20
	webfetchTimeout    = 30 * time.Second
	maxWebfetchTimeout = 2 * time.Minute
)

// noise is removed from HTML pages before conversion.
const noise = "script, style, noscript, iframe, object, embed, nav, footer, meta, link"

var acceptByFormat = map[string]string{
	"markdown": "text/markdown, text/plain;q=0.9, text/html;q=0.8, */*;q=0.1",
	"text":     "text/plain, text/html;q=0.8, */*;q=0.1",
	"html":     "text/html, application/xhtml+xml;q=0.9, */*;q=0.1",
}

// WebFetchTool fetches pages and converts HTML for the model.
type WebFetchTool struct {
	client   *http.Client
	markdown *md.Converter
}

// WebFetchInput represents the input for the webfetch tool.
type WebFetchInput struct {
	URL      string `json:"url"`
	Format   string `json:"format,omitempty"`
	Selector string `json:"selector,omitempty"`
	Timeout  int    `json:"timeout,omitempty"` // seconds
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{Timeout: maxWebfetchTimeout},
		markdown: md.NewConverter("", true, &md.Options{
			HeadingStyle:     "atx",
			BulletListMarker: "-",
			CodeBlockStyle:   "fenced",
		}),
	}
}

func (t *WebFetchTool) ID() string          { return "webfetch" }
func (t *WebFetchTool) Description() string { return webfetchDescription }

func (t *WebFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "The page to fetch"},
			"format": {"type": "string", "enum": ["markdown", "text", "html"], "description": "Output format (default markdown)"},
			"selector": {"type": "string", "description": "CSS selector limiting an HTML page to matching elements"},
			"timeout": {"type": "integer", "description": "Optional timeout in seconds (max 120)"}
		},
		"required": ["url"]
	}`)
}

func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WebFetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}
	if params.Format == "" {
		params.Format = "markdown"
	}
	accept, ok := acceptByFormat[params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", params.Format)
	}

	timeout := webfetchTimeout
	if params.Timeout > 0 {
		timeout = min(time.Duration(params.Timeout)*time.Second, maxWebfetchTimeout)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, status, err := t.fetch(reqCtx, params.URL, accept)
	if err != nil {
		return nil, err
	}

	title := params.URL
	output := string(body)
	if isHTML(contentType) && params.Format != "html" {
		page, err := t.render(body, params.Format, params.Selector)
		if err != nil {
			return nil, err
		}
		output = page.content
		if page.title != "" {
			title = page.title
		}
	}

	if len(output) > MaxOutputLength {
		output = output[:MaxOutputLength] + "\n... (content truncated)"
	}
	return &Result{
		Title:    title,
		Output:   output,
		Metadata: map[string]any{"status": status, "contentType": contentType, "url": params.URL},
	}, nil
}

func (t *WebFetchTool) fetch(ctx context.Context, url, accept string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "deskpilot/1.0 (+webfetch)")
	req.Header.Set("Accept", accept)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", resp.StatusCode, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > maxPageSize {
		return nil, "", resp.StatusCode, fmt.Errorf("page larger than 5MB")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize+1))
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxPageSize {
		return nil, "", resp.StatusCode, fmt.Errorf("page larger than 5MB")
	}
	return body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

type renderedPage struct {
	title   string
	content string
}

// render strips page chrome, applies selector and converts what is left.
func (t *WebFetchTool) render(body []byte, format, selector string) (*renderedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &renderedPage{title: strings.TrimSpace(doc.Find("title").First().Text())}
	if page.title == "" {
		page.title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(noise).Remove()
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	if selector != "" {
		sel = doc.Find(selector)
		if sel.Length() == 0 {
			return nil, fmt.Errorf("selector %q matched nothing", selector)
		}
	}

	switch format {
	case "markdown":
		page.content = strings.TrimSpace(t.markdown.Convert(sel))
	default:
		page.content = plainText(sel)
	}
	return page, nil
}

func plainText(sel *goquery.Selection) string {
	var lines []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func (t *WebFetchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
