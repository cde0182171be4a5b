// Package objectstore uploads saved data-log files to MinIO or any S3 compatible endpoint.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/lucaslui/hems/gait-processor/internal/config"
)

// bucketAPI is the part of *minio.Client the uploader needs.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Client struct {
	mc       bucketAPI
	bucket   string
	basePath string
}

func NewMinIO(cfg config.S3Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "minio client %s", cfg.Endpoint)
	}
	return &Client{mc: mc, bucket: cfg.Bucket, basePath: cfg.BasePath}, nil
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", c.bucket)
	}
	if !exists {
		return errors.Wrapf(c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}), "create bucket %s", c.bucket)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return errors.Wrapf(err, "put %s/%s", c.bucket, objectName)
}

// UploadFile streams a local file to <base>/year=/month=/day=/<name>, partitioned by at.
func (c *Client) UploadFile(ctx context.Context, path string, at time.Time) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", errors.Wrapf(err, "stat %s", path)
	}

	obj := BuildObjectPath(c.basePath, at, filepath.Base(path))
	if err := c.Upload(ctx, obj, f, fi.Size(), contentType(path)); err != nil {
		return "", err
	}
	return obj, nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func BuildObjectPath(basePath string, t time.Time, file string) string {
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/%s",
		basePath, t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), file)
}
