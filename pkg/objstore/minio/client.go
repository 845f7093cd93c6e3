package minio

import (
	"context"
	"flag"
	"mime"
	"net/url"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

type Config struct {
	Endpoint          string `yaml:"endpoint"`
	MinioRootUser     string `yaml:"minio_root_user"`
	MinioRootPassword string `yaml:"minio_root_password"`
	Secure            bool   `yaml:"secure"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Endpoint, flagPrefix+"minio.endpoint", "localhost:9000", `Minio endpoint.`)
	f.StringVar(&c.MinioRootUser, flagPrefix+"minio.root-user", "", `Minio access key.`)
	f.StringVar(&c.MinioRootPassword, flagPrefix+"minio.root-password", "", `Minio secret key.`)
	f.BoolVar(&c.Secure, flagPrefix+"minio.secure", false, `Use TLS when talking to minio.`)
}

type MinioWriter struct {
	client *minio.Client
	bucket string
}

func NewWriter(ctx context.Context, cfg Config, bucket string) (*MinioWriter, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioRootUser, cfg.MinioRootPassword, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize minio client for writer")
	}

	found, err := minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "check minio bucket exists")
	}

	if !found {
		if err := minioClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "make minio bucket")
		}
	}

	return &MinioWriter{
		client: minioClient,
		bucket: bucket,
	}, nil
}

func (c *MinioWriter) Put(ctx context.Context, key string, filePath string) (string, error) {
	ct := mime.TypeByExtension(filepath.Ext(filePath))
	if ct == "" {
		ct = "application/octet-stream"
	}

	info, err := c.client.FPutObject(ctx, c.bucket, key, filePath, minio.PutObjectOptions{
		ContentType: ct,
	})
	if err != nil {
		return "", errors.Wrap(err, "store minio object")
	}

	return c.location(info.Key), nil
}

func (c *MinioWriter) location(key string) string {
	u := url.URL{}
	if endpoint := c.client.EndpointURL(); endpoint != nil {
		u = *endpoint
	}
	u.Path = path.Join("/", c.bucket, key)
	return u.String()
}
