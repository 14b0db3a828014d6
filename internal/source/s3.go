package source

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Yates-Labs/dramatis/internal/story"
)

// S3API is the subset of the S3 client used to read stories
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads .txt objects under a bucket prefix
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source builds a client from the default AWS configuration chain.
// endpoint, when set, targets an S3-compatible service with path-style
// addressing.
func NewS3Source(ctx context.Context, bucket, prefix, endpoint string) (*S3Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SourceWithClient(client, bucket, prefix), nil
}

// NewS3SourceWithClient creates a source with an existing client
func NewS3SourceWithClient(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Name implements Source
func (s *S3Source) Name() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

// Load implements Source
func (s *S3Source) Load(ctx context.Context) ([]story.Story, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var stories []story.Story
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", s.Name(), err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !isStoryFile(key) {
				continue
			}

			content, err := s.read(ctx, key)
			if err != nil {
				return nil, err
			}
			stories = append(stories, story.Story{
				Title:   titleFromName(key),
				Content: content,
			})
		}
	}

	return collect(s.Name(), stories)
}

func (s *S3Source) read(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return string(data), nil
}
