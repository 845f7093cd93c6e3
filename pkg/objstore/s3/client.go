package s3

import (
	"context"
	"flag"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Region, flagPrefix+"s3.region", "eu-west-2", `AWS region of the bucket.`)
	f.StringVar(&c.Endpoint, flagPrefix+"s3.endpoint", "", `Custom S3 endpoint. Empty means AWS.`)
	f.StringVar(&c.AccessKeyID, flagPrefix+"s3.access-key-id", "", `Static access key. Empty means the default credential chain.`)
	f.StringVar(&c.SecretAccessKey, flagPrefix+"s3.secret-access-key", "", `Static secret key.`)
	f.BoolVar(&c.UsePathStyle, flagPrefix+"s3.use-path-style", false, `Address buckets with path-style URLs.`)
}

type S3Writer struct {
	uploader *manager.Uploader
	bucket   string
}

func NewWriter(ctx context.Context, cfg Config, bucket string) (*S3Writer, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Writer{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}, nil
}

func (w *S3Writer) Put(ctx context.Context, key string, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "open file for s3 upload")
	}
	defer f.Close()

	ct := mime.TypeByExtension(filepath.Ext(filePath))
	if ct == "" {
		ct = "application/octet-stream"
	}

	out, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ct),
	})
	if err != nil {
		return "", errors.Wrap(err, "store s3 object")
	}

	return out.Location, nil
}
