package migrate

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3Scheme = "s3://"

// S3Config locates an S3-compatible object store holding dumps.
type S3Config struct {
	Endpoint  string // host[:port]
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectOpener opens a stored object for reading.
type ObjectOpener interface {
	OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3Opener reads dump objects through the MinIO client. Empty credentials
// make anonymous requests.
type S3Opener struct {
	client *minio.Client
}

// NewS3Opener creates an opener for cfg. No request is made until an object
// is opened.
func NewS3Opener(cfg S3Config) (*S3Opener, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return &S3Opener{client: client}, nil
}

func (o *S3Opener) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// ParseS3URI splits "s3://bucket/path/to/key".
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 URI must name an object (s3://bucket/key): %q", uri)
	}
	return bucket, key, nil
}

func openS3Dump(ctx context.Context, uri string, opener ObjectOpener) (Dump, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return Dump{}, err
	}
	if opener == nil {
		return Dump{}, fmt.Errorf("no object store configured for %s", uri)
	}
	rc, err := opener.OpenObject(ctx, bucket, key)
	if err != nil {
		return Dump{}, err
	}
	defer rc.Close()
	return ReadDump(rc, path.Base(key))
}
