// Package nodes attributes the node types of a workflow to the third-party
// packages that provide them and pins each package to a revision.
package nodes

import (
	"context"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"comfydeps/internal/registry"
	"comfydeps/internal/workflow"
	"comfydeps/pkg/models"
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RevisionResolver pins a source URL to a commit hash.
type RevisionResolver interface {
	Resolve(ctx context.Context, sourceURL string, snapshot *models.Snapshot, allowLive bool) (models.Hash, string)
}

// Options tunes one resolution run.
type Options struct {
	Snapshot *models.Snapshot
	// PullLatestHashIfMissing allows a live lookup when the snapshot has no pin.
	PullLatestHashIfMissing bool
	// IncludeNodeList records every node attributed to a package.
	IncludeNodeList bool
	// ManualRepos maps a node type to the source URL that provides it,
	// bypassing the extension map.
	ManualRepos map[string]string
}

// Result is the outcome of attributing a workflow's nodes.
type Result struct {
	CustomNodes  *models.CustomNodeMap
	MissingNodes []string
	// Conflicts maps a node type to the titles of every package claiming it.
	Conflicts map[string][]string
	// Suggestions maps a missing node type to catalog entries of packages
	// that almost matched it.
	Suggestions map[string][]models.PackageCatalogEntry
}

// Resolver runs the custom-node matching algorithm.
type Resolver struct {
	revisions   RevisionResolver
	logger      Logger
	concurrency int
}

// NewResolver creates a Resolver. revisions may be nil to leave every
// package unpinned.
func NewResolver(revisions RevisionResolver, logger Logger, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Resolver{revisions: revisions, logger: logger, concurrency: concurrency}
}

// ResolveGraph parses a graph-shaped workflow and resolves its nodes.
func (r *Resolver) ResolveGraph(ctx context.Context, data []byte, layouts workflow.Layouts, reg *registry.Registry, opts Options) (*Result, error) {
	nodes, err := workflow.ParseGraph(data, SamplerLayouts.Merge(layouts))
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, nodes, reg, opts)
}

// ResolveExecution parses an execution-shaped workflow and resolves its nodes.
func (r *Resolver) ResolveExecution(ctx context.Context, data []byte, reg *registry.Registry, opts Options) (*Result, error) {
	nodes, err := workflow.ParseExecution(data)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, nodes, reg, opts)
}

// Resolve attributes nodes to packages. Neither conflicts nor missing nodes
// are errors; the only error is ctx ending before revisions are resolved.
func (r *Resolver) Resolve(ctx context.Context, nodes []models.WorkflowNode, reg *registry.Registry, opts Options) (*Result, error) {
	res := &Result{
		CustomNodes:  models.NewCustomNodeMap(),
		MissingNodes: []string{},
		Conflicts:    make(map[string][]string),
		Suggestions:  make(map[string][]models.PackageCatalogEntry),
	}
	missing := make(map[string]struct{})

	for _, node := range nodes {
		if node.Type == "" {
			continue
		}

		url, title, ok := r.manual(node.Type, reg, opts.ManualRepos)
		if !ok {
			var matches []*registry.Extension
			for _, ext := range reg.Extensions {
				if ext.Provides(node.Type) {
					matches = append(matches, ext)
				}
			}

			switch {
			case len(matches) == 0:
				if IsBuiltin(node.Type) {
					continue
				}
				if _, dup := missing[node.Type]; !dup {
					missing[node.Type] = struct{}{}
					res.MissingNodes = append(res.MissingNodes, node.Type)
					if s := suggestions(node.Type, reg); len(s) > 0 {
						res.Suggestions[node.Type] = s
					}
				}
				continue
			case len(matches) > 1:
				if _, dup := res.Conflicts[node.Type]; !dup {
					titles := make([]string, len(matches))
					for i, m := range matches {
						titles[i] = m.Title()
					}
					res.Conflicts[node.Type] = titles
					r.logger.Warn("node type claimed by several packages, using the first", "type", node.Type, "packages", titles)
				}
			}
			url, title = matches[0].SourceURL, matches[0].Metadata.TitleAux
		}

		dep, seen := res.CustomNodes.Get(url)
		if !seen {
			dep = newDependency(url, title, reg)
			res.CustomNodes.Set(url, dep)
		}
		if opts.IncludeNodeList {
			dep.Nodes = append(dep.Nodes, node)
		}
	}

	for _, pkg := range inferFromSchedulers(nodes) {
		if _, seen := res.CustomNodes.Get(pkg.url); seen {
			continue
		}
		dep := newDependency(pkg.url, pkg.name, reg)
		dep.Warning = InferredWarning
		res.CustomNodes.Set(pkg.url, dep)
		r.logger.Debug("inferred package from scheduler value", "url", pkg.url)
	}

	if err := r.pin(ctx, res.CustomNodes.Values(), opts); err != nil {
		return nil, err
	}
	r.logger.Debug("custom nodes resolved", "packages", res.CustomNodes.Len(), "missing", len(res.MissingNodes), "conflicts", len(res.Conflicts))
	return res, nil
}

// manual looks nodeType up in the override table: exact key first, then
// case-insensitively since config keys may arrive lowercased.
func (r *Resolver) manual(nodeType string, reg *registry.Registry, repos map[string]string) (string, string, bool) {
	if len(repos) == 0 {
		return "", "", false
	}
	url, ok := repos[nodeType]
	if !ok {
		for k, v := range repos {
			if strings.EqualFold(k, nodeType) {
				url, ok = v, true
				break
			}
		}
	}
	if !ok || url == "" {
		return "", "", false
	}
	for _, ext := range reg.Extensions {
		if ext.SourceURL == url && ext.Metadata.TitleAux != "" {
			return url, ext.Metadata.TitleAux, true
		}
	}
	return url, repoName(url), true
}

// pin resolves the revision of every dependency. Each task writes only to
// its own dependency.
func (r *Resolver) pin(ctx context.Context, deps []*models.CustomNodeDependency, opts Options) error {
	if r.revisions == nil {
		return ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, dep := range deps {
		g.Go(func() error {
			hash, warning := r.revisions.Resolve(gctx, dep.URL, opts.Snapshot, opts.PullLatestHashIfMissing)
			dep.Hash = hash
			if dep.Warning == "" {
				dep.Warning = warning
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func newDependency(url, name string, reg *registry.Registry) *models.CustomNodeDependency {
	if name == "" {
		name = repoName(url)
	}
	dep := &models.CustomNodeDependency{URL: url, Name: name}
	if entry, ok := reg.CatalogEntry(url); ok {
		dep.Pip = entry.Pip
		dep.Files = entry.Files
		dep.InstallType = entry.InstallType
	}
	return dep
}

func suggestions(nodeType string, reg *registry.Registry) []models.PackageCatalogEntry {
	var out []models.PackageCatalogEntry
	seen := make(map[string]struct{})
	for _, ext := range reg.Extensions {
		if !ext.NearlyProvides(nodeType) {
			continue
		}
		if _, dup := seen[ext.SourceURL]; dup {
			continue
		}
		seen[ext.SourceURL] = struct{}{}
		if entry, ok := reg.CatalogEntry(ext.SourceURL); ok {
			out = append(out, entry)
		}
	}
	return out
}

func repoName(url string) string {
	return strings.TrimSuffix(path.Base(strings.TrimRight(url, "/")), ".git")
}
