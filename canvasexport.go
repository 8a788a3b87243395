package canvasexport

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hellenic-development/canvas-export/pkg/cache"
	"github.com/hellenic-development/canvas-export/pkg/canvas"
	"github.com/hellenic-development/canvas-export/pkg/hierarchy"
	"github.com/hellenic-development/canvas-export/pkg/imager"
	"github.com/hellenic-development/canvas-export/pkg/report"
)

// Options configures one export invocation.
type Options struct {
	Token   string // pre-issued API access token (required)
	FileURL string // design file URL (required)

	// NodeIDs targets specific nodes. Hyphenated identifiers are accepted
	// and normalized to canonical form. When empty, identifiers are taken
	// from the URL's node-id parameter; when the URL carries none either,
	// the file's top-level frames are exported.
	NodeIDs []string

	ExportImages bool    // download and write rendered assets
	Format       string  // "png", "jpg", "svg", "pdf"; default "png"
	Scale        float64 // render scale in [1, 4]; default 1
	OutDir       string  // asset directory, default "canvas-assets"
	WithMetadata bool    // write a sibling .json metadata file per asset

	Depth     int  // hierarchy depth bound; 0 or less means unbounded
	PrintTree bool // render the display outline into Result.TreeText

	UseCache bool          // consult and fill the on-disk response cache
	CacheDir string        // cache directory, default ".cache"
	CacheTTL time.Duration // cache entry lifetime, default 24h

	BaseURL string // API root override for self-hosted deployments

	// Logger receives progress messages and warnings. The zero value
	// discards everything.
	Logger zerolog.Logger

	// Client overrides the constructed API client; when set, Token,
	// BaseURL and the cache wiring are the caller's responsibility.
	Client *canvas.Client
}

// Result contains the export output.
type Result struct {
	FileID   string
	FileName string

	// Nodes holds one reconstructed view per exported root, in target
	// order.
	Nodes []*hierarchy.ViewNode

	// Assets lists every written asset; Skipped lists node identifiers
	// that produced no asset (missing render URL, missing metadata, or a
	// failed download or write).
	Assets  []imager.Asset
	Skipped []string

	// TreeText is the human-readable outline, populated when
	// Options.PrintTree is set.
	TreeText string

	// Markdown is the rendered export report.
	Markdown string
}

var validFormats = map[string]bool{"png": true, "jpg": true, "svg": true, "pdf": true}

// Run executes the export pipeline: resolve the file and node identifiers,
// fetch node metadata (through the cache when enabled), reconstruct the
// hierarchy views, then fetch render URLs and download each node's asset.
//
// Failures fetching the node metadata or the render URL batch abort the
// run. A single node failing afterwards (no render URL, failed download,
// failed write) is logged, recorded in Result.Skipped, and never aborts
// its siblings.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.OutDir == "" {
		opts.OutDir = "canvas-assets"
	}

	if opts.Token == "" && opts.Client == nil {
		return nil, fmt.Errorf("access token is required")
	}
	if !validFormats[opts.Format] {
		return nil, fmt.Errorf("invalid image format %q (must be png, jpg, svg, or pdf)", opts.Format)
	}
	if opts.Scale < 1 || opts.Scale > 4 {
		return nil, fmt.Errorf("scale must be between 1 and 4, got %g", opts.Scale)
	}

	logger := opts.Logger

	fileID, err := canvas.ParseFileID(opts.FileURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("file_id", fileID).Msg("starting export")

	nodeIDs := resolveNodeIDs(opts.NodeIDs, opts.FileURL)

	client := opts.Client
	if client == nil {
		client = buildClient(opts, logger)
	}

	result := &Result{FileID: fileID}

	// Materialize the target roots, either from the requested nodes or
	// from the file's top-level frames.
	var roots []*canvas.Node
	var rootIDs []string

	if len(nodeIDs) > 0 {
		logger.Info().Int("node_count", len(nodeIDs)).Msg("fetching requested nodes")
		nodesResp, err := client.FetchNodes(ctx, fileID, nodeIDs, opts.UseCache)
		if err != nil {
			return nil, fmt.Errorf("fetch nodes: %w", err)
		}
		result.FileName = nodesResp.Name

		for _, id := range nodeIDs {
			data, ok := nodesResp.Nodes[id]
			if !ok {
				logger.Warn().Str("node_id", id).Msg("node missing from response, skipping")
				result.Skipped = append(result.Skipped, id)
				continue
			}
			doc := data.Document
			roots = append(roots, &doc)
			rootIDs = append(rootIDs, id)
		}
	} else {
		logger.Info().Msg("no node identifiers given, targeting top-level frames")
		fileResp, err := client.FetchFile(ctx, fileID, opts.UseCache)
		if err != nil {
			return nil, fmt.Errorf("fetch file: %w", err)
		}
		result.FileName = fileResp.Name
		roots, rootIDs = topLevelFrames(&fileResp.Document)
	}

	maxDepth := opts.Depth
	if maxDepth <= 0 {
		maxDepth = math.MaxInt
	}
	for _, root := range roots {
		result.Nodes = append(result.Nodes, hierarchy.Build(root, maxDepth, true))
	}

	if opts.PrintTree {
		var sb strings.Builder
		for _, root := range roots {
			sb.WriteString(hierarchy.Sprint(root))
		}
		result.TreeText = sb.String()
	}

	if opts.ExportImages && len(rootIDs) > 0 {
		if err := exportAssets(ctx, client, &opts, fileID, roots, rootIDs, result, logger); err != nil {
			return nil, err
		}
	}

	result.Markdown = report.ToMarkdown(&report.Report{
		FileName: result.FileName,
		FileID:   fileID,
		Format:   opts.Format,
		Scale:    opts.Scale,
		Assets:   result.Assets,
		Nodes:    result.Nodes,
		Skipped:  result.Skipped,
	})

	logger.Info().Int("asset_count", len(result.Assets)).Int("skipped", len(result.Skipped)).Msg("export complete")
	return result, nil
}

// buildClient wires the API client from the options, attaching the
// response cache when requested. A cache that cannot be created degrades
// to running without one; caching is never a correctness requirement.
func buildClient(opts Options, logger zerolog.Logger) *canvas.Client {
	clientOpts := []canvas.Option{canvas.WithLogger(logger)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, canvas.WithBaseURL(opts.BaseURL))
	}
	if opts.UseCache {
		cacheOpts := []cache.Option{cache.WithLogger(logger)}
		if opts.CacheTTL > 0 {
			cacheOpts = append(cacheOpts, cache.WithTTL(opts.CacheTTL))
		}
		store, err := cache.New(opts.CacheDir, cacheOpts...)
		if err != nil {
			logger.Warn().Err(err).Msg("cache unavailable, continuing without it")
		} else {
			clientOpts = append(clientOpts, canvas.WithCache(store))
		}
	}
	return canvas.NewClient(opts.Token, clientOpts...)
}

// resolveNodeIDs normalizes and deduplicates the explicit node targets,
// falling back to identifiers carried in the URL.
func resolveNodeIDs(explicit []string, fileURL string) []string {
	if len(explicit) == 0 {
		return canvas.ParseNodeIDs(fileURL)
	}

	seen := make(map[string]bool, len(explicit))
	ids := make([]string, 0, len(explicit))
	for _, id := range explicit {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		normalized := canvas.NormalizeNodeID(trimmed)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		ids = append(ids, normalized)
	}
	return ids
}

// topLevelFrames collects the frames sitting directly on the file's pages,
// the natural export targets when no node was requested. Files without any
// frame fall back to the pages themselves.
func topLevelFrames(document *canvas.Node) ([]*canvas.Node, []string) {
	var roots []*canvas.Node
	var ids []string

	for i := range document.Children {
		page := &document.Children[i]
		for j := range page.Children {
			frame := &page.Children[j]
			roots = append(roots, frame)
			ids = append(ids, frame.ID)
		}
	}

	if len(roots) == 0 {
		for i := range document.Children {
			page := &document.Children[i]
			roots = append(roots, page)
			ids = append(ids, page.ID)
		}
	}

	return roots, ids
}

// exportAssets fetches the render URLs for all roots in one batched call,
// then downloads and writes each node's asset sequentially. Batching is
// the rate-limit strategy; parallel per-node downloads would defeat it.
func exportAssets(ctx context.Context, client *canvas.Client, opts *Options, fileID string, roots []*canvas.Node, rootIDs []string, result *Result, logger zerolog.Logger) error {
	urls, err := client.FetchImageURLs(ctx, fileID, rootIDs, opts.Format, opts.Scale)
	if err != nil {
		return fmt.Errorf("fetch image URLs: %w", err)
	}

	writer, err := imager.NewWriter(opts.OutDir)
	if err != nil {
		return err
	}

	for i, id := range rootIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		imageURL, ok := urls[id]
		if !ok || imageURL == "" {
			logger.Warn().Str("node_id", id).Msg("no render URL for node, skipping")
			result.Skipped = append(result.Skipped, id)
			continue
		}

		data, err := client.DownloadImage(ctx, imageURL)
		if err != nil {
			logger.Warn().Err(err).Str("node_id", id).Msg("download failed, skipping node")
			result.Skipped = append(result.Skipped, id)
			continue
		}

		asset, err := writer.Write(fileID, id, roots[i].Name, opts.Format, opts.Scale, data)
		if err != nil {
			logger.Warn().Err(err).Str("node_id", id).Msg("write failed, skipping node")
			result.Skipped = append(result.Skipped, id)
			continue
		}

		if opts.WithMetadata {
			if _, err := writer.WriteMetadata(asset, result.Nodes[i]); err != nil {
				logger.Warn().Err(err).Str("node_id", id).Msg("metadata write failed")
			}
		}

		result.Assets = append(result.Assets, asset)
		logger.Info().Str("node_id", id).Str("file", asset.FileName).Msg("asset exported")
	}

	return nil
}
