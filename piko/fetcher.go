package piko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// DefaultUsername is the factory login of the web interface
	DefaultUsername = "pvserver"

	// DefaultPassword is the factory password of the web interface
	DefaultPassword = "pvwr"

	// DefaultTimeout bounds a single page request
	DefaultTimeout = 15 * time.Second

	measurementsPath = "/index.fhtml"
	consumptionPath  = "/BA.fhtml"
	infoPath         = "/Solar2.fhtml"
	logDataPath      = "/LogDaten.dat"

	valueCellColor = "#FFFFFF"
)

var (
	// ErrPageNotFound is returned when the device answers 404
	ErrPageNotFound = errors.New("piko: page not found")
	// ErrNotImplemented is returned by operations the client does not support yet
	ErrNotImplemented = errors.New("piko: not implemented")
)

// Fetcher retrieves raw token sequences from the inverter
type Fetcher interface {
	FetchMeasurements(ctx context.Context) ([]string, error)
	FetchConsumption(ctx context.Context) ([]string, error)
}

// Info identifies the inverter
type Info struct {
	Serial string `json:"serial"`
	Model  string `json:"model"`
}

// HTTPFetcher scrapes the inverter's web interface
type HTTPFetcher struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// FetcherOption configures an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithCredentials sets the basic auth credentials
func WithCredentials(username, password string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.username = username
		f.password = password
	}
}

// WithHTTPClient replaces the default client with its 15 second timeout
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// NewHTTPFetcher creates a fetcher for host, which may be given with or
// without scheme ("192.168.1.50" or "http://192.168.1.50").
func NewHTTPFetcher(host string, opts ...FetcherOption) *HTTPFetcher {
	base := strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	f := &HTTPFetcher{
		baseURL:  base,
		username: DefaultUsername,
		password: DefaultPassword,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BaseURL returns the normalized device URL
func (f *HTTPFetcher) BaseURL() string {
	return f.baseURL
}

// FetchMeasurements returns the value cells of the index page followed by the status text
func (f *HTTPFetcher) FetchMeasurements(ctx context.Context) ([]string, error) {
	doc, err := f.fetchDocument(ctx, measurementsPath)
	if err != nil {
		return nil, err
	}

	var tokens []string
	walk(doc, func(n *html.Node) {
		if n.Data == "td" && attr(n, "bgcolor") == valueCellColor {
			tokens = append(tokens, ownText(n))
		}
	})

	status := selectPath(doc, statusCell)
	if status == nil {
		return nil, fmt.Errorf("status cell missing in %s", measurementsPath)
	}
	return append(tokens, ownText(status)), nil
}

// FetchConsumption returns the bold values of the BA page with their unit suffix removed
func (f *HTTPFetcher) FetchConsumption(ctx context.Context) ([]string, error) {
	doc, err := f.fetchDocument(ctx, consumptionPath)
	if err != nil {
		return nil, err
	}

	var tokens []string
	walk(doc, func(n *html.Node) {
		if n.Data == "b" {
			tokens = append(tokens, stripUnit(ownText(n)))
		}
	})
	return tokens, nil
}

// FetchInfo reads serial number and model from the info page
func (f *HTTPFetcher) FetchInfo(ctx context.Context) (Info, error) {
	doc, err := f.fetchDocument(ctx, infoPath)
	if err != nil {
		return Info{}, err
	}

	serial := selectPath(doc, serialCell)
	model := selectPath(doc, modelCell)
	if serial == nil || model == nil {
		return Info{}, fmt.Errorf("info cells missing in %s", infoPath)
	}
	return Info{Serial: ownText(serial), Model: ownText(model)}, nil
}

// FetchLogData would download the historical log. Not supported.
func (f *HTTPFetcher) FetchLogData(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", logDataPath, ErrNotImplemented)
}

func (f *HTTPFetcher) fetchDocument(ctx context.Context, path string) (*html.Node, error) {
	url := f.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.SetBasicAuth(f.username, f.password)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrPageNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}
	return doc, nil
}

// walk visits element nodes in document order
func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ownText returns the trimmed text that precedes the node's first child element
func ownText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil && c.Type != html.ElementNode; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

func stripUnit(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:len(r)-1]))
}

// step selects the pos-th (1-based) child element named tag
type step struct {
	tag string
	pos int
}

var (
	statusCell = []step{{"body", 1}, {"form", 1}, {"font", 1}, {"table", 2}, {"tr", 8}, {"td", 3}}
	serialCell = []step{{"body", 1}, {"form", 1}, {"font", 1}, {"table", 1}, {"tr", 2}, {"td", 3}}
	modelCell  = []step{{"body", 1}, {"form", 1}, {"table", 1}, {"tr", 2}, {"td", 2}, {"font", 1}}
)

// selectPath follows steps from the <html> element.
// Implicit table sections inserted by the parser are skipped.
func selectPath(doc *html.Node, path []step) *html.Node {
	cur := findChild(doc, "html", 1)
	for _, s := range path {
		if cur == nil {
			return nil
		}
		cur = findChild(cur, s.tag, s.pos)
	}
	return cur
}

func findChild(n *html.Node, tag string, pos int) *html.Node {
	matches := 0
	var found *html.Node
	var scan func(*html.Node)
	scan = func(parent *html.Node) {
		for c := parent.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == tag {
				matches++
				if matches == pos {
					found = c
					return
				}
				continue
			}
			if isTableSection(c.Data) && tag == "tr" {
				scan(c)
			}
		}
	}
	scan(n)
	return found
}

func isTableSection(tag string) bool {
	return tag == "tbody" || tag == "thead" || tag == "tfoot"
}
