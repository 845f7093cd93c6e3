package objstore

import (
	"context"
	"flag"
	"fmt"

	"github.com/ValerySidorin/eprints-adaptor/pkg/objstore/minio"
	"github.com/ValerySidorin/eprints-adaptor/pkg/objstore/s3"
)

type Config struct {
	Store  string       `yaml:"store"`
	Bucket string       `yaml:"bucket"`
	Minio  minio.Config `yaml:"minio"`
	S3     s3.Config    `yaml:"s3"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Store, flagPrefix+"store", "", `Object storage, that will be used to store files relocated from the repository: minio or s3.`)
	f.StringVar(&c.Bucket, flagPrefix+"bucket", "", `Bucket relocated files are written to.`)
	c.Minio.RegisterFlags(flagPrefix, f)
	c.S3.RegisterFlags(flagPrefix, f)
}

// Writer uploads a local file under key and returns the location of the
// stored object.
type Writer interface {
	Put(ctx context.Context, key string, path string) (string, error)
}

func NewWriter(ctx context.Context, cfg Config) (Writer, error) {
	switch cfg.Store {
	case "minio":
		return minio.NewWriter(ctx, cfg.Minio, cfg.Bucket)
	case "s3":
		return s3.NewWriter(ctx, cfg.S3, cfg.Bucket)
	}

	return nil, fmt.Errorf("invalid store for writer")
}
