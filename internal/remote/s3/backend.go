package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/golang/snappy"

	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/remote"
	"github.com/medadhere/backend/internal/uuid"
)

// API is the subset of *s3.Client used by the backend.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const contentType = "application/x-snappy-json"

// Backend stores records under <prefix><owner>/<kind>/<cloudId>.json.
type Backend struct {
	api    API
	bucket string
	prefix string
	now    func() time.Time
}

var _ remote.Backend = (*Backend)(nil)

// NewClient builds an aws-sdk S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	eo, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(eo.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if eo.Endpoint != "" {
			o.BaseEndpoint = aws.String(eo.Endpoint)
		}
		o.UsePathStyle = eo.UsePathStyle
	}), nil
}

// NewBackend creates a Backend over api.
func NewBackend(api API, bucket, prefix string) *Backend {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Backend{api: api, bucket: bucket, prefix: prefix, now: time.Now}
}

// SetClock overrides the server clock.
func (b *Backend) SetClock(now func() time.Time) {
	b.now = now
}

func (b *Backend) dir(ownerID string, kind models.Kind) string {
	return b.prefix + ownerID + "/" + string(kind) + "/"
}

func (b *Backend) key(ownerID string, kind models.Kind, cloudID string) string {
	return b.dir(ownerID, kind) + cloudID + ".json"
}

func (b *Backend) put(ctx context.Context, key string, rec models.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(snappy.Encode(nil, raw)),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}
	return nil
}

func (b *Backend) get(ctx context.Context, key string) (models.Record, error) {
	resp, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return models.Record{}, remote.ErrNotFound
		}
		return models.Record{}, fmt.Errorf("S3 get object failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	compressed, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Record{}, fmt.Errorf("S3 read body failed: %w", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return models.Record{}, fmt.Errorf("decompress %s: %w", key, err)
	}
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

// Create implements remote.Backend.
func (b *Backend) Create(ctx context.Context, ownerID string, kind models.Kind, rec models.Record) (models.Record, error) {
	out := rec.Clone()
	out.CloudID = uuid.New()
	out.OwnerID = ownerID
	now := b.now().UnixMilli()
	out.UpdatedAt, out.SyncedAt = now, now
	if out.Deleted && out.DeletedAt == 0 {
		out.DeletedAt = now
	}
	if err := b.put(ctx, b.key(ownerID, kind, out.CloudID), out); err != nil {
		return models.Record{}, err
	}
	return out, nil
}

// List implements remote.Backend.
func (b *Backend) List(ctx context.Context, ownerID string, kind models.Kind) ([]models.Record, error) {
	var out []models.Record
	p := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.dir(ownerID, kind)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			rec, err := b.get(ctx, key)
			if errors.Is(err, remote.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt < out[j].UpdatedAt
		}
		return out[i].CloudID < out[j].CloudID
	})
	return out, nil
}

// Update implements remote.Backend.
func (b *Backend) Update(ctx context.Context, ownerID string, kind models.Kind, cloudID string, rec models.Record) (models.Record, error) {
	key := b.key(ownerID, kind, cloudID)
	if _, err := b.get(ctx, key); err != nil {
		return models.Record{}, err
	}

	out := rec.Clone()
	out.CloudID, out.OwnerID = cloudID, ownerID
	now := b.now().UnixMilli()
	out.UpdatedAt, out.SyncedAt = now, now
	if !out.Deleted {
		out.DeletedAt = 0
	}
	if err := b.put(ctx, key, out); err != nil {
		return models.Record{}, err
	}
	return out, nil
}

// Delete implements remote.Backend.
func (b *Backend) Delete(ctx context.Context, ownerID string, kind models.Kind, cloudID string) (models.Record, error) {
	key := b.key(ownerID, kind, cloudID)
	cur, err := b.get(ctx, key)
	if err != nil {
		return models.Record{}, err
	}

	now := b.now().UnixMilli()
	cur.Deleted = true
	cur.DeletedAt, cur.UpdatedAt, cur.SyncedAt = now, now, now
	if err := b.put(ctx, key, cur); err != nil {
		return models.Record{}, err
	}
	return cur, nil
}
