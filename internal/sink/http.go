package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// HTTP posts artifacts as multipart/form-data.
type HTTP struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewHTTP returns an HTTP sink with a bounded client.
func NewHTTP(url, token string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTP{URL: url, Token: token, Client: &http.Client{Timeout: timeout}}
}

// Upload implements Sink. Form fields: recording (file), meetingId and userId
// when present, timestamp, and metadata (JSON).
func (h *HTTP) Upload(ctx context.Context, artifact Artifact) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	md := artifact.Metadata

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = ContentTypeWebM
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="recording"; filename="%s.webm"`, fileStem(md)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create recording part: %w", err)
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return fmt.Errorf("write recording part: %w", err)
	}

	if md.MeetingID != "" {
		if err := writer.WriteField("meetingId", md.MeetingID); err != nil {
			return err
		}
	}
	if md.UserID != "" {
		if err := writer.WriteField("userId", md.UserID); err != nil {
			return err
		}
	}
	if err := writer.WriteField("timestamp", md.TimestampString()); err != nil {
		return err
	}
	encoded, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writer.WriteField("metadata", string(encoded)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token := strings.TrimSpace(h.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload recording: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
