package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mia/internal/config"
)

// PutObjectAPI is the subset of the S3 client used by the sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores artifacts as objects.
type S3 struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// NewS3 builds an S3 sink from the default AWS configuration chain,
// overridden by any region, endpoint, or static credentials in cfg.
func NewS3(ctx context.Context, cfg config.Sink) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// ObjectKey returns prefix/<timestamp>-<meetingId|recording>.webm.
func (s *S3) ObjectKey(md Metadata) string {
	name := fileStem(md) + ".webm"
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

// Upload implements Sink.
func (s *S3) Upload(ctx context.Context, artifact Artifact) error {
	md := artifact.Metadata
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = ContentTypeWebM
	}
	meta := map[string]string{
		"timestamp":          md.TimestampString(),
		"recording-duration": strconv.FormatInt(md.DurationMillis, 10),
		"has-microphone":     strconv.FormatBool(md.HasMicrophone),
		"meeting-platform":   md.MeetingPlatform,
	}
	if md.MeetingID != "" {
		meta["meeting-id"] = md.MeetingID
	}
	if md.UserID != "" {
		meta["user-id"] = md.UserID
	}
	key := s.ObjectKey(md)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(artifact.Data),
		ContentLength: aws.Int64(int64(len(artifact.Data))),
		ContentType:   aws.String(contentType),
		Metadata:      meta,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.Bucket, key, err)
	}
	return nil
}
