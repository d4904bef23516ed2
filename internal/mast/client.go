package mast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/observation"
	"ticguide/lib/htmlutil"
	tracing "ticguide/lib/telemetry"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_list_manifests = "client.list-manifests"
	report_client_fetch_manifest = "client.fetch-manifest"
)

// DefaultIndexURL is the MAST bulk downloads page listing the per-sector
// download scripts.
const DefaultIndexURL = "https://archive.stsci.edu/tess/bulk_downloads/bulk_downloads_ffi-tp-lc-dv.html"

var (
	ErrCatalogUnreachable = errors.New("archive catalog unreachable")
	ErrMalformedManifest  = errors.New("malformed manifest")
)

// manifests are the light curve download scripts, ex. tesscurl_sector_14_lc.sh
// or tesscurl_sector_27_fast-lc.sh
var manifestLink = regexp.MustCompile(`lc\.sh`)

// Resource is the locator of a single manifest.
type Resource struct {
	Name string
	URL  string
}

// ManifestEntry is a single line of a manifest.
type ManifestEntry struct {
	TargetID observation.TargetID
	// Line is the raw download command for this target.
	Line string
}

type Manifest struct {
	Resource Resource
	Entries  []ManifestEntry
}

// TargetIDs returns the targets of the manifest in the order they appear.
func (m Manifest) TargetIDs() []observation.TargetID {
	out := make([]observation.TargetID, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.TargetID
	}
	return out
}

// Catalog lists and fetches manifests.
type Catalog interface {
	ListManifests(ctx context.Context) ([]Resource, error)
	FetchManifest(ctx context.Context, resource Resource) (Manifest, error)
}

type ClientOptions struct {
	// IndexURL defaults to DefaultIndexURL.
	IndexURL string
	// Timeout bounds a single request, it defaults to a minute.
	Timeout time.Duration
	// RequestsPerSecond defaults to 2, a negative value disables rate limiting.
	RequestsPerSecond float64
	UserAgent         string
}

// Client is the Catalog backed by the MAST archive.
type Client struct {
	http  *resty.Client
	index *url.URL
	tel   telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (Client, error) {
	tel = telemetry.NewScopedAPI("mast", tel)

	if opts.IndexURL == "" {
		opts.IndexURL = DefaultIndexURL
	}
	index, err := url.Parse(opts.IndexURL)
	if err != nil {
		return Client{}, fmt.Errorf("parse index url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 2
	}

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		httpClient.SetHeader("user-agent", opts.UserAgent)
	}

	if opts.RequestsPerSecond > 0 {
		// max burst >= 1 just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(httpClient, tel)
	tracing.InstrumentResty(httpClient, "ticguide/mast/http")

	return Client{http: httpClient, index: index, tel: tel}, nil
}

// ListManifests scrapes the index page for links to manifests.
func (c Client) ListManifests(ctx context.Context) ([]Resource, error) {
	c.tel.ReportDebug(report_client_list_manifests, c.index.String())

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.index.String()).
		Get(c.index.String())
	if err != nil {
		c.tel.ReportBroken(
			report_client_list_manifests,
			fmt.Errorf("fetch: %w", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnreachable, err)
	}
	if res.IsError() {
		err := fmt.Errorf("%w: %s returned %s", ErrCatalogUnreachable, c.index, res.Status())
		c.tel.ReportBroken(report_client_list_manifests, err)
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		c.tel.ReportBroken(
			report_client_list_manifests,
			fmt.Errorf("parse html: %w", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnreachable, err)
	}

	anchors := htmlutil.GetAnchors(ctx, c.index, doc.Find("a[href]"), manifestLink)
	resources := make([]Resource, len(anchors))
	for i, a := range anchors {
		resources[i] = Resource{Name: a.Name, URL: a.Href}
	}
	c.tel.ReportCount(report_client_list_manifests, int64(len(resources)))

	return resources, nil
}

// FetchManifest downloads and parses a manifest, the manifest is either
// parsed completely or an error is returned.
func (c Client) FetchManifest(ctx context.Context, resource Resource) (Manifest, error) {
	c.tel.ReportDebug(report_client_fetch_manifest, resource.URL)

	res, err := c.http.R().
		SetContext(ctx).
		Get(resource.URL)
	if err != nil {
		c.tel.ReportBroken(
			report_client_fetch_manifest,
			fmt.Errorf("fetch: %w", err),
			resource.URL,
		)
		return Manifest{}, err
	}
	if res.IsError() {
		err := fmt.Errorf("%s returned %s", resource.URL, res.Status())
		c.tel.ReportBroken(report_client_fetch_manifest, err)
		return Manifest{}, err
	}

	entries, err := ParseManifest(bytes.NewReader(res.Body()))
	if err != nil {
		c.tel.ReportBroken(
			report_client_fetch_manifest,
			fmt.Errorf("parse: %w", err),
			resource.URL,
		)
		return Manifest{}, fmt.Errorf("%s: %w", resource.URL, err)
	}

	return Manifest{Resource: resource, Entries: entries}, nil
}
