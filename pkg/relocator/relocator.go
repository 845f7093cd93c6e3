package relocator

import (
	"context"
	"flag"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValerySidorin/eprints-adaptor/pkg/objstore"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

type Config struct {
	TempDir      string        `yaml:"temp_dir"`
	BufferSize   int           `yaml:"buffer_size"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.TempDir, flagPrefix+"temp-dir", os.TempDir(), `Directory files are downloaded to before they are uploaded.`)
	f.IntVar(&c.BufferSize, flagPrefix+"buffer-size", 32*1024, `Download buffer size in bytes.`)
	f.DurationVar(&c.StallTimeout, flagPrefix+"stall-timeout", 30*time.Second, `Cancel a download that made no progress for this long. 0 disables the check.`)
}

// File references a repository file that now lives in the object store.
type File struct {
	SourceURL string
	Key       string
	Location  string
	Name      string
	Size      int64
}

// Relocator moves repository files into durable object storage.
type Relocator struct {
	fetcher *fetcher
	writer  objstore.Writer
	log     log.Logger
}

func New(cfg Config, writer objstore.Writer, logger log.Logger) *Relocator {
	logger = log.With(logger, "component", "relocator")

	return &Relocator{
		fetcher: newFetcher(cfg, logger),
		writer:  writer,
		log:     logger,
	}
}

// Relocate downloads sourceURL and uploads it to the object store. A failed
// download is not an error: it is logged and reported as not found. Upload
// failures are returned.
func (r *Relocator) Relocate(ctx context.Context, sourceURL string) (*File, bool, error) {
	localPath, err := r.fetcher.download(ctx, sourceURL)
	if err != nil {
		_ = level.Warn(r.log).Log("msg", "unable to download file, skipping", "url", sourceURL, "err", err)
		return nil, false, nil
	}
	defer r.removeLocal(localPath)

	var size int64
	if fi, err := os.Stat(localPath); err == nil {
		size = fi.Size()
	}

	key := ObjectKey(sourceURL)
	loc, err := r.writer.Put(ctx, key, localPath)
	if err != nil {
		return nil, false, errors.Wrapf(err, "relocator: upload %s", sourceURL)
	}

	_ = level.Info(r.log).Log("msg", "file relocated", "url", sourceURL, "location", loc)
	return &File{
		SourceURL: sourceURL,
		Key:       key,
		Location:  loc,
		Name:      filepath.Base(localPath),
		Size:      size,
	}, true, nil
}

func (r *Relocator) removeLocal(localPath string) {
	if err := os.Remove(localPath); err != nil {
		_ = level.Warn(r.log).Log("msg", "an error occurred removing file", "path", localPath, "err", err)
	}

	if err := os.Remove(filepath.Dir(localPath)); err != nil && !os.IsNotExist(err) {
		_ = level.Warn(r.log).Log("msg", "an error occurred removing download dir", "path", filepath.Dir(localPath), "err", err)
	}
}

// ObjectKey derives the object store key of a source URL: its host followed
// by its path.
func ObjectKey(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return strings.TrimPrefix(strings.TrimPrefix(sourceURL, "https://"), "http://")
	}

	p := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if p == "" {
		return u.Host
	}

	return u.Host + "/" + p
}
