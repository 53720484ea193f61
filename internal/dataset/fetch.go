package dataset

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads subject files from a mirror with retries.
type Fetcher struct {
	BaseURL     string
	Concurrency int

	client *retryablehttp.Client
}

// NewFetcher returns a fetcher for the mirror at baseURL. wait is the minimum
// backoff between attempts.
func NewFetcher(baseURL string, retries int, wait time.Duration) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = wait
	client.RetryWaitMax = 8 * wait
	client.Logger = log.StandardLogger()

	return &Fetcher{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Concurrency: 4,
		client:      client,
	}
}

// Fetch downloads name into dst. The file appears at dst only once complete.
func (f *Fetcher) Fetch(ctx context.Context, name, dst string) error {
	url := f.BaseURL + "/" + name
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "request %s", url)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", url)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("fetch %s: unexpected status %s", url, res.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, res.Body)
	if err != nil {
		tmp.Close()
		return errors.Wrapf(err, "download %s", url)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary file")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, "move download to %s", dst)
	}

	log.WithFields(log.Fields{"url": url, "bytes": n}).Info("Downloaded subject file")
	return nil
}

// FetchAll downloads every name missing from dir.
func (f *Fetcher) FetchAll(ctx context.Context, dir string, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := f.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, name := range names {
		name := name
		dst := filepath.Join(dir, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		g.Go(func() error {
			return f.Fetch(ctx, name, dst)
		})
	}
	return g.Wait()
}
