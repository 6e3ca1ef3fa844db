package channel

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/metarender/pkg/cache"
	"github.com/matzehuels/metarender/pkg/errors"
	rio "github.com/matzehuels/metarender/pkg/io"
	"github.com/matzehuels/metarender/pkg/metadata"
)

// TTLRepodata is how long a fetched channel index is cached.
const TTLRepodata = time.Hour

// Repodata is the subset of a subdir's repodata.json the renderer reads.
type Repodata struct {
	Info          rio.RepodataInfo               `json:"info"`
	Packages      map[string]metadata.InfoRecord `json:"packages"`
	PackagesConda map[string]metadata.InfoRecord `json:"packages.conda,omitempty"`
}

// Records returns every package record, sorted by file name.
func (r *Repodata) Records() []metadata.InfoRecord {
	files := make([]string, 0, len(r.Packages)+len(r.PackagesConda))
	byFile := make(map[string]metadata.InfoRecord, cap(files))
	for _, m := range []map[string]metadata.InfoRecord{r.Packages, r.PackagesConda} {
		for fn, rec := range m {
			files = append(files, fn)
			byFile[fn] = rec
		}
	}
	slices.Sort(files)
	out := make([]metadata.InfoRecord, len(files))
	for i, fn := range files {
		out[i] = byFile[fn]
	}
	return out
}

// Client reads the package index of one conda channel.
//
// A Client is safe for concurrent use.
type Client struct {
	http    *httpClient
	baseURL string
}

// NewClient creates a client for the channel at baseURL, caching indexes in
// backend (nil disables caching) for ttl.
func NewClient(baseURL string, backend cache.Cache, ttl time.Duration) *Client {
	return &Client{
		http:    newHTTPClient(backend, "channel:", ttl, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// URL returns the channel's base URL.
func (c *Client) URL() string { return c.baseURL }

// FetchRepodata retrieves <channel>/<subdir>/repodata.json. With refresh
// the cache is bypassed.
//
// It returns an error wrapping [ErrNotFound] when the channel does not
// carry the subdir.
func (c *Client) FetchRepodata(ctx context.Context, subdir string, refresh bool) (*Repodata, error) {
	if subdir == "" || strings.ContainsAny(subdir, "/\\") {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid subdir %q", subdir)
	}
	url := c.baseURL + "/" + subdir + "/repodata.json"

	var rd Repodata
	err := c.http.cached(ctx, url, refresh, &rd, func() error {
		rd = Repodata{}
		return c.http.get(ctx, url, &rd)
	})
	if err != nil {
		return nil, err
	}
	if rd.Info.Subdir == "" {
		rd.Info.Subdir = subdir
	}
	return &rd, nil
}

// Available fetches the given subdirs of every channel and merges them into
// an availability index: package name to sorted, distinct "version build"
// entries. Subdirs a channel does not carry are skipped.
func Available(ctx context.Context, clients []*Client, subdirs []string, refresh bool) (map[string][]string, error) {
	avail := make(map[string][]string)
	for _, c := range clients {
		for _, subdir := range subdirs {
			rd, err := c.FetchRepodata(ctx, subdir, refresh)
			if stderrors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("channel %s: %w", c.URL(), err)
			}
			for _, rec := range rd.Records() {
				if rec.Name == "" {
					continue
				}
				avail[rec.Name] = append(avail[rec.Name], rec.Version+" "+rec.Build)
			}
		}
	}
	for name, entries := range avail {
		slices.Sort(entries)
		avail[name] = slices.Compact(entries)
	}
	return avail, nil
}

// Merge adds the entries of src to dst, keeping each list sorted and
// distinct. A nil dst is allocated.
func Merge(dst, src map[string][]string) map[string][]string {
	if dst == nil {
		dst = make(map[string][]string, len(src))
	}
	for name, entries := range src {
		merged := append(slices.Clone(dst[name]), entries...)
		slices.Sort(merged)
		dst[name] = slices.Compact(merged)
	}
	return dst
}
