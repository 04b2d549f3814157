package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend loads resources addressed as "s3://bucket/key".
type S3Backend struct {
	client *s3.Client
}

// NewS3Backend builds a backend using the default AWS credential chain,
// the same config.LoadDefaultConfig entry point the teacher's artifact
// store and our storage.S3BlobStore both use.
func NewS3Backend(ctx context.Context, region string) (*S3Backend, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Backend{client: s3.NewFromConfig(awsCfg)}, nil
}

func (b *S3Backend) Scheme() string { return "s3" }

func (b *S3Backend) Load(ctx context.Context, uri string) (Resource, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return Resource{}, err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Resource{}, fmt.Errorf("fetch %s: %w", uri, ErrNotFound)
		}
		return Resource{}, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return Resource{}, fmt.Errorf("read body of %s: %w", uri, err)
	}
	mimeType := ""
	if out.ContentType != nil {
		mimeType = *out.ContentType
	}
	return Resource{URI: uri, MimeType: mimeType, Content: content}, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("resources: malformed s3 uri %q", uri)
	}
	return parts[0], parts[1], nil
}
