// Package fetcher acquires published source tables. It downloads over HTTP
// (rate limited, retrying) and FTP, extracts members from ZIP archives, and
// decodes the CSV and XLSX formats the tables ship in.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads URLs of one scheme. Callers pick the implementation
// from the source URL's scheme.
type Fetcher interface {
	// Download fetches the URL and streams the body. The caller must close
	// the returned reader.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into a local file and reports the
	// number of bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
