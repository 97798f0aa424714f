package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"moodlog-go/internal/moodlog"
)

// S3Archive stores exports in an S3 bucket under a key prefix:
//
//	<prefix>/exports/<id>.age
//
// Credentials come from the standard AWS environment; when both
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are set they are used as a
// static credential pair, which keeps the CLI usable with plain .env files.
type S3Archive struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

var _ moodlog.Archive = (*S3Archive)(nil)

// NewS3Archive creates an S3 archive for the given bucket, prefix and region.
func NewS3Archive(ctx context.Context, name, bucket, prefix, region string) (*S3Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 archive requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("AWS_SESSION_TOKEN"))))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Archive{
		name:     name,
		bucket:   bucket,
		prefix:   strings.TrimSuffix(prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (a *S3Archive) exportKey(id string) string {
	key := "exports/" + id + ".age"
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	return key
}

// Put uploads an export, overwriting any previous object with the same id.
func (a *S3Archive) Put(id string, r io.Reader, size int64) error {
	_, err := a.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.exportKey(id)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading export to s3: %w", err)
	}
	return nil
}

// Get downloads an export by id and writes it to w.
func (a *S3Archive) Get(id string, w io.Writer) error {
	out, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.exportKey(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("export not found: %s", id)
		}
		return fmt.Errorf("fetching export from s3: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading export body: %w", err)
	}
	return nil
}

// List returns the ids of all stored exports, sorted.
func (a *S3Archive) List() ([]string, error) {
	prefix := a.exportKey("")
	prefix = strings.TrimSuffix(prefix, ".age")

	var ids []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("listing exports in s3: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".age") {
				continue
			}
			id := strings.TrimSuffix(key[len(prefix):], ".age")
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup verifies the bucket is reachable with the current credentials.
func (a *S3Archive) ValidateSetup() error {
	_, err := a.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}
