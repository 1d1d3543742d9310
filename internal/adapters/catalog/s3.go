package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// S3Config holds S3 mirror configuration.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string // Product prefix, e.g. MOLT/MOD11A1.061
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Remote implements output.Remote for a bucket mirroring the day-directory
// layout as key prefixes.
type S3Remote struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Remote creates a new S3 remote.
func NewS3Remote(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Remote, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Remote{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// Connect verifies the bucket is reachable with the configured credentials.
func (r *S3Remote) Connect(ctx context.Context) error {
	if err := r.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to bucket %s: %w", r.bucket, err)
	}
	r.logger.Debug("s3 session established", "bucket", r.bucket, "prefix", r.prefix)
	return nil
}

// Ping issues a HeadBucket.
func (r *S3Remote) Ping(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})
	return err
}

// Close is a no-op; the SDK client holds no session.
func (r *S3Remote) Close() error {
	return nil
}

// list returns the common prefixes and object keys directly below dir.
func (r *S3Remote) list(ctx context.Context, dir string) (prefixes, keys []string, err error) {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(dir),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(p.Prefix))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return prefixes, keys, nil
}

// ListDays returns the day prefixes below the product prefix, newest first.
func (r *S3Remote) ListDays(ctx context.Context) ([]domain.DayID, error) {
	prefixes, _, err := r.list(ctx, r.dirKey(""))
	if err != nil {
		return nil, fmt.Errorf("listing days: %w", err)
	}
	return daysFromNames(prefixes), nil
}

// ListFiles returns the object names below a day prefix in key order.
func (r *S3Remote) ListFiles(ctx context.Context, day domain.DayID) ([]string, error) {
	_, keys, err := r.list(ctx, r.dirKey(day.String()))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", day, err)
	}
	return fileNames(keys), nil
}

// Open issues a GetObject.
func (r *S3Remote) Open(ctx context.Context, day domain.DayID, name string) (io.ReadCloser, int64, error) {
	resp, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.fileKey(day, name)),
	})
	if err != nil {
		return nil, -1, err
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

// Size issues a HeadObject.
func (r *S3Remote) Size(ctx context.Context, day domain.DayID, name string) (int64, error) {
	resp, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.fileKey(day, name)),
	})
	if err != nil {
		return -1, err
	}
	if resp.ContentLength == nil {
		return -1, nil
	}
	return *resp.ContentLength, nil
}

// dirKey returns the listing prefix of a directory below the product prefix.
// An empty result lists the bucket root.
func (r *S3Remote) dirKey(dir string) string {
	key := joinKey(r.prefix, dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

func (r *S3Remote) fileKey(day domain.DayID, name string) string {
	return joinKey(r.prefix, day.String(), name)
}

// joinKey joins non-empty key parts with "/".
func joinKey(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}
