package deepagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ClientOptions configures NewS3Client's credential resolution.
type S3ClientOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // non-empty selects an S3-compatible endpoint (e.g. MinIO)
}

// NewS3Client resolves an *s3.Client either from the ambient AWS
// credential chain (env vars, shared config, instance role) or from
// explicit static keys when opts carries them, mirroring the teacher's
// go.mod pairing of aws-sdk-go-v2/config with aws-sdk-go-v2/credentials
// for environments that can't rely on the default chain (e.g. local
// MinIO during development).
func NewS3Client(ctx context.Context, opts S3ClientOptions) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3CheckpointStore stores one JSON object per thread at
// "checkpoints/<threadId>.json", grounded on the teacher's go.mod S3
// dependency (present but otherwise unwired in the retrieved
// internal/agent source) and spec §4.6's "durable before
// checkpoint-saved" requirement, which S3's read-after-write consistency
// for new keys satisfies once PutObject returns.
type S3CheckpointStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3CheckpointStore returns a store writing objects to bucket under
// "checkpoints/" (or prefix, if non-empty).
func NewS3CheckpointStore(client *s3.Client, bucket, prefix string) *S3CheckpointStore {
	if prefix == "" {
		prefix = "checkpoints"
	}
	return &S3CheckpointStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3CheckpointStore) key(threadID string) string {
	return fmt.Sprintf("%s/%s.json", s.prefix, threadID)
}

// Save PUTs the checkpoint as a JSON object; S3 PutObject only returns
// once the write is durably committed, satisfying the durability
// requirement without a separate fsync-equivalent step.
func (s *S3CheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	now := time.Now()
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(cp.ThreadID)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Load GETs and decodes the checkpoint object, returning nil if absent.
func (s *S3CheckpointStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(threadID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint body: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
