// Package registry fetches and holds the extension map and the package
// catalog used to attribute node types to source packages.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"comfydeps/pkg/models"
)

// ErrUnavailable marks a registry that could not be fetched or decoded.
// Resolution cannot proceed without it.
var ErrUnavailable = errors.New("registry unavailable")

// UnavailableError reports which registry document failed.
type UnavailableError struct {
	Document string
	URL      string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("registry unavailable: %s (%s): %v", e.Document, e.URL, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) hold for every UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Extension is an extension map entry prepared for matching.
type Extension struct {
	models.ExtensionMapEntry
	// Pattern is the compiled NamePattern; nil when absent or not valid RE2.
	Pattern    *regexp.Regexp
	PatternErr error
	classes    map[string]struct{}

	// folded forms used for near-miss diagnostics
	foldedClasses map[string]struct{}
	foldedPattern *regexp.Regexp
}

// Provides reports whether the extension claims nodeType, either by exact
// class name or by its name pattern.
func (e *Extension) Provides(nodeType string) bool {
	if _, ok := e.classes[nodeType]; ok {
		return true
	}
	return e.Pattern != nil && e.Pattern.MatchString(nodeType)
}

// NearlyProvides reports whether nodeType almost matched: a class name equal
// to it once case and punctuation are ignored, or a pattern that matches it
// case-insensitively. It is a diagnostic aid and never used for attribution.
func (e *Extension) NearlyProvides(nodeType string) bool {
	if _, ok := e.foldedClasses[fold(nodeType)]; ok {
		return true
	}
	return e.foldedPattern != nil && e.foldedPattern.MatchString(nodeType)
}

func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Title is the display name used in conflict reports.
func (e *Extension) Title() string {
	if e.Metadata.TitleAux != "" {
		return e.Metadata.TitleAux
	}
	if e.Metadata.Title != "" {
		return e.Metadata.Title
	}
	return e.SourceURL
}

// NewExtension prepares entry for matching.
func NewExtension(entry models.ExtensionMapEntry) *Extension {
	ext := &Extension{
		ExtensionMapEntry: entry,
		classes:           make(map[string]struct{}, len(entry.ClassNames)),
		foldedClasses:     make(map[string]struct{}, len(entry.ClassNames)),
	}
	for _, name := range entry.ClassNames {
		ext.classes[name] = struct{}{}
		ext.foldedClasses[fold(name)] = struct{}{}
	}
	if entry.Metadata.NamePattern != "" {
		ext.Pattern, ext.PatternErr = regexp.Compile(entry.Metadata.NamePattern)
		if ext.PatternErr == nil {
			ext.foldedPattern, _ = regexp.Compile("(?i)" + entry.Metadata.NamePattern)
		}
	}
	return ext
}

// Registry is a read-only view of both registry documents. It is safe for
// concurrent use since nothing writes to it after construction.
type Registry struct {
	// Extensions is in document order; first-match resolution depends on it.
	Extensions []*Extension
	Catalog    []models.PackageCatalogEntry
	FetchedAt  time.Time

	byFile map[string]int
}

// New builds a Registry from already decoded documents.
func New(extensions []models.ExtensionMapEntry, catalog []models.PackageCatalogEntry) *Registry {
	r := &Registry{
		Extensions: make([]*Extension, 0, len(extensions)),
		Catalog:    catalog,
		FetchedAt:  time.Now(),
		byFile:     make(map[string]int),
	}
	for _, e := range extensions {
		r.Extensions = append(r.Extensions, NewExtension(e))
	}
	for i, entry := range catalog {
		for _, f := range entry.Files {
			if _, seen := r.byFile[f]; !seen {
				r.byFile[f] = i
			}
		}
	}
	return r
}

// CatalogEntry returns the first catalog entry listing url among its files.
func (r *Registry) CatalogEntry(url string) (models.PackageCatalogEntry, bool) {
	i, ok := r.byFile[url]
	if !ok {
		return models.PackageCatalogEntry{}, false
	}
	return r.Catalog[i], true
}
