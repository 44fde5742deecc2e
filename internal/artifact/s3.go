package artifact

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings of an S3-compatible object store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// S3Store keeps result artifacts in an S3-compatible bucket under
// <jobID>/<name>; references are s3://bucket/key. Inputs are staged in a
// local spool because the table codecs read from disk.
type S3Store struct {
	client *minio.Client
	bucket string
	spool  *FileStore
}

// NewS3Store wraps an existing client.
func NewS3Store(client *minio.Client, bucket string, spool *FileStore) *S3Store {
	return &S3Store{client: client, bucket: bucket, spool: spool}
}

// DialS3 connects to the object store and creates the bucket when missing.
func DialS3(ctx context.Context, cfg S3Config, spool *FileStore) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewS3Store(client, cfg.Bucket, spool), nil
}

// Stage implements Store using the local spool.
func (s *S3Store) Stage(ctx context.Context, jobID, name string, r io.Reader) (string, error) {
	return s.spool.Stage(ctx, jobID, name, r)
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, jobID, name string, r io.Reader) (string, error) {
	key, err := objectKey(jobID, name)
	if err != nil {
		return "", err
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Open implements Store.
func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	if bucket != s.bucket {
		return nil, fmt.Errorf("%w: %q is not in bucket %s", ErrInvalidRef, ref, s.bucket)
	}

	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref, err)
	}
	return obj, nil
}

// Remove implements Store for staged inputs.
func (s *S3Store) Remove(path string) error {
	return s.spool.Remove(path)
}

func objectKey(jobID, name string) (string, error) {
	if err := cleanJobID(jobID); err != nil {
		return "", err
	}
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return jobID + "/" + base, nil
}

func parseS3Ref(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return bucket, key, nil
}

var _ Store = (*S3Store)(nil)
