// Package sink hands finalized recordings to external storage.
//
// Uploads are a single best-effort attempt. A failed upload is reported to
// the caller and the artifact is not kept anywhere else.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mia/internal/config"
)

// ContentTypeWebM is the MIME type of encoded recordings.
const ContentTypeWebM = "audio/webm"

// Metadata describes a finalized recording.
type Metadata struct {
	MeetingID string    `json:"meetingId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// DurationMillis is finalize time minus the moment encoding began, or 0
	// when encoding never began.
	DurationMillis  int64  `json:"recordingDuration"`
	HasMicrophone   bool   `json:"hasMicrophone"`
	MeetingPlatform string `json:"meetingPlatform"`
}

// TimestampString formats the finalize time as ISO-8601 in UTC.
func (m Metadata) TimestampString() string {
	return m.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Artifact is a finalized recording plus its metadata.
type Artifact struct {
	Data        []byte
	ContentType string
	Metadata    Metadata
}

// Sink accepts finalized artifacts.
type Sink interface {
	Upload(ctx context.Context, artifact Artifact) error
}

// Noop discards artifacts. It is used when no sink is configured.
type Noop struct {
	Logger *slog.Logger
}

// Upload implements Sink.
func (n Noop) Upload(_ context.Context, artifact Artifact) error {
	if n.Logger != nil {
		n.Logger.Info("no sink configured; recording discarded",
			slog.Int("bytes", len(artifact.Data)),
			slog.String("meeting_id", artifact.Metadata.MeetingID),
		)
	}
	return nil
}

// New builds the sink selected by cfg.Sink.Kind.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.Sink.Kind {
	case "", "none":
		return Noop{Logger: logger}, nil
	case "http":
		return NewHTTP(cfg.Sink.URL, cfg.Sink.Token, cfg.SinkTimeout()), nil
	case "s3":
		return NewS3(ctx, cfg.Sink)
	default:
		return nil, fmt.Errorf("unsupported sink kind %q", cfg.Sink.Kind)
	}
}

func fileStem(md Metadata) string {
	name := md.MeetingID
	if name == "" {
		name = "recording"
	}
	return md.Timestamp.UTC().Format("20060102T150405Z") + "-" + name
}
