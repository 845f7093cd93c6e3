package relocator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const tempDirPattern = "relocate-"

type fetcher struct {
	grabClient   *grab.Client
	tempDir      string
	stallTimeout time.Duration
	log          log.Logger
}

func newFetcher(cfg Config, log log.Logger) *fetcher {
	c := grab.NewClient()
	if cfg.BufferSize > 0 {
		c.BufferSize = cfg.BufferSize
	}

	return &fetcher{
		grabClient:   c,
		tempDir:      cfg.TempDir,
		stallTimeout: cfg.StallTimeout,
		log:          log,
	}
}

// download fetches url into a fresh directory under the temp dir and returns
// the path of the downloaded file. Nothing is left on disk when it fails.
func (f *fetcher) download(ctx context.Context, url string) (string, error) {
	if f.tempDir != "" {
		if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
			return "", errors.Wrap(err, "file fetcher os.MkdirAll")
		}
	}

	dir, err := os.MkdirTemp(f.tempDir, tempDirPattern)
	if err != nil {
		return "", errors.Wrap(err, "file fetcher os.MkdirTemp")
	}

	path, err := f.grab(ctx, dir, url)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			_ = level.Warn(f.log).Log("msg", "failed to clean up download dir", "dir", dir, "err", rmErr)
		}
		return "", err
	}

	return path, nil
}

func (f *fetcher) grab(ctx context.Context, dir string, url string) (string, error) {
	req, err := grab.NewRequest(dir, url)
	if err != nil {
		return "", errors.Wrap(err, "file fetcher create request")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req = req.WithContext(ctx)

	_ = level.Info(f.log).Log("msg", fmt.Sprintf("start downloading file: %s", url))

	t := time.NewTicker(1 * time.Second)
	defer t.Stop()

	resp := f.grabClient.Do(req)

	// A dropped connection is not always reported, so cancel the download
	// once it stops making progress.
	if f.stallTimeout > 0 {
		go func() {
			t2 := time.NewTicker(f.stallTimeout)
			defer t2.Stop()

			prevProg := resp.BytesComplete()

			for {
				select {
				case <-t2.C:
					currProg := resp.BytesComplete()
					if currProg == prevProg {
						_ = level.Error(f.log).Log("msg", "download made no progress, canceling", "url", url)
						cancel()
						return
					}
					prevProg = currProg
				case <-resp.Done:
					return
				}
			}
		}()
	}

Loop:
	for {
		select {
		case <-t.C:
			_ = level.Debug(f.log).Log("msg", fmt.Sprintf("transferred %d / %d bytes (%.2f%%)",
				resp.BytesComplete(),
				resp.Size(),
				100*resp.Progress()), "url", url)
		case <-resp.Done:
			break Loop
		}
	}

	if err := resp.Err(); err != nil {
		return "", errors.Wrapf(err, "file fetcher download %s", url)
	}

	return resp.Filename, nil
}
