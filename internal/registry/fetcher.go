package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"comfydeps/pkg/models"
)

// Blacklist holds source URLs that are never attributed to a node type,
// whatever the extension map says.
var Blacklist = []string{
	"https://github.com/AppleBotzz/ComfyUI_LLMVISION",
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Fetcher retrieves the registry documents. It does not cache; wrap it in a
// Cache for that.
type Fetcher struct {
	client          *http.Client
	extensionMapURL string
	catalogURL      string
	blacklist       map[string]struct{}
	logger          Logger
	onFetch         func(document string, err error)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithBlacklist adds source URLs to the builtin blacklist.
func WithBlacklist(urls ...string) Option {
	return func(f *Fetcher) {
		for _, u := range urls {
			f.blacklist[u] = struct{}{}
		}
	}
}

// WithFetchHook registers a callback run after each document fetch.
func WithFetchHook(hook func(document string, err error)) Option {
	return func(f *Fetcher) { f.onFetch = hook }
}

// NewFetcher creates a Fetcher for the given document URLs.
func NewFetcher(extensionMapURL, catalogURL string, timeout time.Duration, logger Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:          &http.Client{Timeout: timeout},
		extensionMapURL: extensionMapURL,
		catalogURL:      catalogURL,
		blacklist:       make(map[string]struct{}, len(Blacklist)),
		logger:          logger,
	}
	for _, u := range Blacklist {
		f.blacklist[u] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load fetches both documents concurrently and builds a Registry.
func (f *Fetcher) Load(ctx context.Context) (*Registry, error) {
	var (
		extensions []models.ExtensionMapEntry
		catalog    []models.PackageCatalogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		extensions, err = f.FetchExtensionMap(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = f.FetchPackageCatalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reg := New(extensions, catalog)
	for _, ext := range reg.Extensions {
		if ext.PatternErr != nil {
			f.logger.Warn("ignoring extension name pattern", "url", ext.SourceURL, "pattern", ext.Metadata.NamePattern, "error", ext.PatternErr)
		}
	}
	f.logger.Info("registry loaded", "extensions", len(reg.Extensions), "catalog", len(reg.Catalog))
	return reg, nil
}

// FetchExtensionMap retrieves the extension map in document order with
// blacklisted source URLs removed.
func (f *Fetcher) FetchExtensionMap(ctx context.Context) ([]models.ExtensionMapEntry, error) {
	raw := orderedmap.New[string, json.RawMessage]()
	if err := f.getJSON(ctx, "extension map", f.extensionMapURL, raw); err != nil {
		return nil, err
	}

	entries := make([]models.ExtensionMapEntry, 0, raw.Len())
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		if _, banned := f.blacklist[pair.Key]; banned {
			f.logger.Debug("skipping blacklisted extension", "url", pair.Key)
			continue
		}
		entry, err := decodeExtension(pair.Key, pair.Value)
		if err != nil {
			return nil, f.unavailable("extension map", f.extensionMapURL, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// decodeExtension reads one [classNames, metadata] tuple.
func decodeExtension(url string, raw json.RawMessage) (models.ExtensionMapEntry, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		return models.ExtensionMapEntry{}, fmt.Errorf("entry %s: %w", url, err)
	}
	entry := models.ExtensionMapEntry{SourceURL: url}
	if len(tuple) > 0 {
		if err := json.Unmarshal(tuple[0], &entry.ClassNames); err != nil {
			return models.ExtensionMapEntry{}, fmt.Errorf("entry %s class names: %w", url, err)
		}
	}
	if len(tuple) > 1 {
		if err := json.Unmarshal(tuple[1], &entry.Metadata); err != nil {
			return models.ExtensionMapEntry{}, fmt.Errorf("entry %s metadata: %w", url, err)
		}
	}
	return entry, nil
}

// FetchPackageCatalog retrieves the package catalog.
func (f *Fetcher) FetchPackageCatalog(ctx context.Context) ([]models.PackageCatalogEntry, error) {
	var doc struct {
		CustomNodes []models.PackageCatalogEntry `json:"custom_nodes"`
	}
	if err := f.getJSON(ctx, "package catalog", f.catalogURL, &doc); err != nil {
		return nil, err
	}
	return doc.CustomNodes, nil
}

func (f *Fetcher) getJSON(ctx context.Context, document, url string, v any) (err error) {
	defer func() {
		if f.onFetch != nil {
			f.onFetch(document, err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return f.unavailable(document, url, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.unavailable(document, url, fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return f.unavailable(document, url, fmt.Errorf("status code %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return f.unavailable(document, url, fmt.Errorf("failed to decode response body: %w", err))
	}
	return nil
}

func (f *Fetcher) unavailable(document, url string, err error) error {
	f.logger.Error("registry fetch failed", "document", document, "url", url, "error", err)
	return &UnavailableError{Document: document, URL: url, Err: err}
}
