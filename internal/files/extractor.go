// Package files collects the external files a workflow references through
// loader nodes, hashing and uploading them as needed.
package files

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"comfydeps/internal/loaders"
	"comfydeps/pkg/models"
)

// HashFunc computes the content hash of the file at a logical path.
type HashFunc func(ctx context.Context, path string) (models.Hash, error)

// UploadFunc uploads the file at path and returns where it can be fetched.
// previousHash is empty when no earlier upload of the file is known.
type UploadFunc func(ctx context.Context, path string, hash, previousHash models.Hash) (string, error)

// Extractor walks loader nodes and produces FileReferences per category.
type Extractor struct {
	hash        HashFunc
	upload      UploadFunc
	concurrency int
}

// NewExtractor creates an Extractor. Either capability may be nil: without
// hash no hashes (and so no uploads) are produced, without upload existing
// URLs are still reused.
func NewExtractor(hash HashFunc, upload UploadFunc, concurrency int) *Extractor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Extractor{hash: hash, upload: upload, concurrency: concurrency}
}

// reference is one file input found during the walk
type reference struct {
	category string
	name     string
	path     string
}

// Extract returns the files referenced by nodes according to table. existing
// holds previously known references per category for upload dedup. Order
// within a category is not significant.
func (e *Extractor) Extract(ctx context.Context, nodes []models.WorkflowNode, table loaders.Table, existing map[string][]models.FileReference) (map[string][]models.FileReference, error) {
	var refs []reference
	seen := make(map[reference]struct{})
	for _, node := range nodes {
		spec, ok := table.Lookup(node.Type)
		if !ok {
			continue
		}
		for _, in := range spec.Inputs {
			v, ok := node.Input(in.Name)
			if !ok {
				continue
			}
			name, ok := v.(string)
			if !ok || name == "" {
				continue
			}
			ref := reference{
				category: in.Category,
				name:     name,
				path:     table.Path(in.Category, name),
			}
			// several loader nodes commonly share one file
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}

	// every reference writes only its own slot
	results := make([]models.FileReference, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			fr, err := e.resolve(gctx, ref, existing)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", ref.path, err)
			}
			results[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]models.FileReference)
	for i, ref := range refs {
		out[ref.category] = append(out[ref.category], results[i])
	}
	return out, nil
}

func (e *Extractor) resolve(ctx context.Context, ref reference, existing map[string][]models.FileReference) (models.FileReference, error) {
	fr := models.FileReference{Name: ref.name}
	if e.hash == nil {
		return fr, nil
	}
	hash, err := e.hash(ctx, ref.path)
	if err != nil {
		return fr, fmt.Errorf("failed to hash file: %w", err)
	}
	fr.Hash = hash
	if hash == "" {
		return fr, nil
	}

	prev, found := lookup(existing, ref.category, ref.name)
	if found && prev.Hash == hash {
		fr.URL = prev.URL
		return fr, nil
	}
	if e.upload == nil {
		return fr, nil
	}
	url, err := e.upload(ctx, ref.path, hash, prev.Hash)
	if err != nil {
		return fr, fmt.Errorf("failed to upload file: %w", err)
	}
	fr.URL = url
	return fr, nil
}

func lookup(existing map[string][]models.FileReference, category, name string) (models.FileReference, bool) {
	for _, fr := range existing[category] {
		if fr.Name == name {
			return fr, true
		}
	}
	return models.FileReference{}, false
}
