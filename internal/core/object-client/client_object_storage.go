package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/config"
	"github.com/markdave123-py/botwise/internal/core"
)

const (
	uploadTimeout = 2 * time.Minute
	opTimeout     = 30 * time.Second
	// DeleteObjects accepts at most 1000 keys per call.
	deleteBatch = 1000
)

// S3Client keeps bot originals in S3 under the BotPrefix/DocumentKey layout.
type S3Client struct {
	api      *s3.Client
	uploader *manager.Uploader
	region   string
	log      *zap.Logger
}

var _ core.ObjectClient = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfg *config.Config, log *zap.Logger) (*S3Client, error) {
	switch {
	case cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "":
		return nil, fmt.Errorf("AWS credentials not set")
	case cfg.AwsRegion == "":
		return nil, fmt.Errorf("AWS_REGION not set")
	case cfg.BucketName == "":
		return nil, fmt.Errorf("BUCKET_NAME not set")
	}
	if log == nil {
		log = zap.NewNop()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AwsRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg)
	log.Info("s3 client ready", zap.String("region", cfg.AwsRegion), zap.String("bucket", cfg.BucketName))
	return &S3Client{
		api:      api,
		uploader: manager.NewUploader(api),
		region:   cfg.AwsRegion,
		log:      log,
	}, nil
}

func (c *S3Client) objectURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key)
}

// UploadFile streams data through the multipart uploader and returns the
// virtual-hosted URL that ParseURL understands.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	if _, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return c.objectURL(bucket, key), nil
}

func (c *S3Client) DeleteFile(ctx context.Context, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix and returns how many went.
func (c *S3Client) DeletePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	pages := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var batch []types.ObjectIdentifier
	deleted := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		dctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		out, err := c.api.DeleteObjects(dctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete s3://%s/%s*: %w", bucket, prefix, err)
		}
		for _, e := range out.Errors {
			c.log.Warn("s3 object not deleted", zap.String("key", aws.ToString(e.Key)), zap.String("code", aws.ToString(e.Code)))
		}
		deleted += len(batch) - len(out.Errors)
		batch = batch[:0]
		return nil
	}

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list s3://%s/%s*: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == deleteBatch {
				if err := flush(); err != nil {
					return deleted, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (c *S3Client) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := c.GetObjectReader(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// GetObjectReader returns the object body. The caller's ctx bounds the read.
// A missing key is reported as ErrNotFound.
func (c *S3Client) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, core.NewError(core.KindNotFound, fmt.Sprintf("object s3://%s/%s not found", bucket, key), err)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}
