package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/hybrid-trader/internal/pipeline"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// exportPrefix is the key prefix of every exported result set
const exportPrefix = "runs/"

// minExportsToKeep survive rotation regardless of age
const minExportsToKeep = 3

// ObjectStore is the subset of the S3 API the exporter uses
type ObjectStore interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader puts one object
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config configures the S3-compatible store. An empty Endpoint uses AWS.
type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// ResultExporter uploads finished run result sets as gzipped JSON
type ResultExporter struct {
	bucket   string
	store    ObjectStore
	uploader Uploader
	now      func() time.Time
	log      zerolog.Logger
}

// ExportInfo describes one exported result set
type ExportInfo struct {
	Key       string    `json:"key"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// exportEnvelope wraps a result set with integrity metadata
type exportEnvelope struct {
	ExportedAt time.Time           `json:"exported_at"`
	Checksum   string              `json:"checksum"`
	Result     *pipeline.RunResult `json:"result"`
}

// NewS3ResultExporter builds an exporter backed by an S3 client
func NewS3ResultExporter(ctx context.Context, cfg S3Config, log zerolog.Logger) (*ResultExporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("export bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewResultExporter(cfg.Bucket, client, manager.NewUploader(client), log), nil
}

// NewResultExporter creates an exporter over an existing store and uploader
func NewResultExporter(bucket string, store ObjectStore, uploader Uploader, log zerolog.Logger) *ResultExporter {
	return &ResultExporter{
		bucket:   bucket,
		store:    store,
		uploader: uploader,
		now:      time.Now,
		log:      log.With().Str("service", "result_export").Logger(),
	}
}

// Export uploads one run's results under runs/YYYY-MM-DD-HHMMSS-<run_id>.json.gz
func (e *ResultExporter) Export(ctx context.Context, result *pipeline.RunResult) error {
	if result == nil {
		return fmt.Errorf("nothing to export")
	}
	startTime := e.now()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}
	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])

	body, err := gzipJSON(exportEnvelope{ExportedAt: startTime.UTC(), Checksum: checksum, Result: result})
	if err != nil {
		return err
	}

	key := exportKey(result.Run.ID, startTime)
	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			"run-id":   result.Run.ID,
			"checksum": checksum,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	e.log.Info().
		Str("key", key).
		Str("run_id", result.Run.ID).
		Int("size_bytes", len(body)).
		Dur("duration_ms", e.now().Sub(startTime)).
		Msg("Run results exported")
	return nil
}

// ListExports lists exported result sets, newest first
func (e *ResultExporter) ListExports(ctx context.Context) ([]ExportInfo, error) {
	var (
		exports []ExportInfo
		token   *string
	)
	now := e.now()

	for {
		out, err := e.store.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(e.bucket),
			Prefix:            aws.String(exportPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list exports: %w", err)
		}

		for _, obj := range out.Contents {
			info, ok := parseExport(obj)
			if !ok {
				continue
			}
			info.AgeHours = int64(now.Sub(info.Timestamp).Hours())
			exports = append(exports, info)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Slice(exports, func(i, j int) bool {
		return exports[i].Timestamp.After(exports[j].Timestamp)
	})
	return exports, nil
}

// RotateExports deletes exports older than the retention period.
// The newest minExportsToKeep are always kept.
func (e *ResultExporter) RotateExports(ctx context.Context, retentionDays int) (int, error) {
	exports, err := e.ListExports(ctx)
	if err != nil {
		return 0, err
	}
	if len(exports) <= minExportsToKeep {
		return 0, nil
	}

	cutoff := e.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, exp := range exports[minExportsToKeep:] {
		if !exp.Timestamp.Before(cutoff) {
			continue
		}
		_, err := e.store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(e.bucket),
			Key:    aws.String(exp.Key),
		})
		if err != nil {
			e.log.Warn().Err(err).Str("key", exp.Key).Msg("Failed to delete old export")
			continue
		}
		deleted++
	}

	e.log.Info().Int("deleted", deleted).Int("retention_days", retentionDays).Msg("Export rotation completed")
	return deleted, nil
}

const exportTimeLayout = "2006-01-02-150405"

func exportKey(runID string, at time.Time) string {
	return fmt.Sprintf("%s%s-%s.json.gz", exportPrefix, at.UTC().Format(exportTimeLayout), runID)
}

// parseExport reads the timestamp and run ID back out of an export key
func parseExport(obj types.Object) (ExportInfo, bool) {
	if obj.Key == nil {
		return ExportInfo{}, false
	}
	key := *obj.Key
	name := strings.TrimSuffix(strings.TrimPrefix(key, exportPrefix), ".json.gz")
	if name == key || len(name) <= len(exportTimeLayout)+1 {
		return ExportInfo{}, false
	}

	ts, err := time.Parse(exportTimeLayout, name[:len(exportTimeLayout)])
	if err != nil {
		return ExportInfo{}, false
	}

	info := ExportInfo{Key: key, RunID: name[len(exportTimeLayout)+1:], Timestamp: ts}
	if obj.Size != nil {
		info.SizeBytes = *obj.Size
	}
	return info, true
}

func gzipJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(v); err != nil {
		gz.Close()
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress export: %w", err)
	}
	return buf.Bytes(), nil
}
