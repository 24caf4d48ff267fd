// Package classify resolves raw URL lists into per-site path groups,
// binary assets, and unresolved leftovers ahead of batch planning.
package classify

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/cache"
	"github.com/tangentleman/docpull/internal/scrape"
)

// binaryExtensions is the fixed set of file extensions classified as binary
// assets regardless of site: images, archives, office documents,
// executables, and media.
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {}, ".bmp": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".exe": {}, ".dmg": {}, ".msi": {}, ".deb": {}, ".rpm": {}, ".bin": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {}, ".webm": {}, ".mkv": {}, ".flac": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

// Classifier splits raw URLs by site using the configured resolver and
// records discovered assets into the content cache.
type Classifier struct {
	resolver scrape.SiteResolver
	cache    *cache.Cache
	logger   *zap.Logger
}

// New constructs a Classifier.
func New(resolver scrape.SiteResolver, contentCache *cache.Cache, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{resolver: resolver, cache: contentCache, logger: logger}
}

// Classify groups the URLs by site, filters binary assets, and collects
// unresolved URLs. Per-site path lists keep submission order with
// duplicates removed. Classification has no error conditions: malformed
// URLs land in Unknown.
func (c *Classifier) Classify(ctx context.Context, urls []string) scrape.Classification {
	out := scrape.Classification{BySite: make(map[string][]string)}
	seen := make(map[string]map[string]struct{})

	for _, raw := range urls {
		if IsBinaryAsset(raw) {
			ref := scrape.AssetRef{URL: raw}
			if siteID, path, ok := c.resolver.Resolve(raw); ok {
				ref.SiteID = siteID
				ref.Path = path
				// Record the asset so later lookups recognize it as
				// resolved without a fetch. Best effort.
				if err := c.cache.MarkAsset(ctx, siteID, path, raw); err != nil {
					c.logger.Warn("mark asset failed",
						zap.String("url", raw), zap.Error(err))
				}
			}
			out.Assets = append(out.Assets, ref)
			continue
		}

		siteID, path, ok := c.resolver.Resolve(raw)
		if !ok {
			out.Unknown = append(out.Unknown, raw)
			continue
		}
		paths, dup := seen[siteID]
		if !dup {
			paths = make(map[string]struct{})
			seen[siteID] = paths
		}
		if _, exists := paths[path]; exists {
			continue
		}
		paths[path] = struct{}{}
		out.BySite[siteID] = append(out.BySite[siteID], path)
	}
	return out
}

// IsBinaryAsset reports whether the URL's path carries a binary-asset
// extension.
func IsBinaryAsset(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(filepath.Ext(p))
	_, ok := binaryExtensions[ext]
	return ok
}
