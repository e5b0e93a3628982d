package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"golang.org/x/time/rate"

	"batchtrack/internal/domain"
)

const (
	SourceName = "studyuk"

	maxBodyBytes   = 32 << 20
	unknownVersion = "unknown"
)

// Config holds content provider configuration.
type Config struct {
	BaseURL        string
	BatchParam     string
	Timeout        time.Duration
	RateLimit      float64
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("external API returned %s", e.Status)
}

// Source fetches batch content from the provider and flattens it into items.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	batchParam     string
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	s := &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		batchParam:     cfg.BatchParam,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceName),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

func (s *Source) Name() string {
	return SourceName
}

// Endpoint returns the provider URL for a batch.
func (s *Source) Endpoint(batchID string) string {
	sep := "?"
	if strings.Contains(s.baseURL, "?") {
		sep = "&"
	}
	return s.baseURL + sep + url.QueryEscape(s.batchParam) + "=" + url.QueryEscape(batchID)
}

// Fetch performs the GET for a batch. Transport failures are retried up to the
// configured attempt count, as are 5xx answers; 4xx answers are returned
// immediately as *StatusError.
func (s *Source) Fetch(ctx context.Context, batchID string) (*domain.Fetch, error) {
	endpoint := s.Endpoint(batchID)

	var fetch *domain.Fetch
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		fetch, err = s.doRequest(ctx, endpoint)
		if err == nil {
			return fetch, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			return nil, err
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"batch_id", batchID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if s.maxAttempts > 1 {
		return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
	}
	return nil, err
}

func (s *Source) doRequest(ctx context.Context, endpoint string) (*domain.Fetch, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "BatchTrack/1.0")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	fetch := &domain.Fetch{
		Endpoint:     endpoint,
		StatusCode:   resp.StatusCode,
		Body:         body,
		ResponseTime: time.Since(start),
	}

	s.logger.Debug("fetched batch content",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"bytes", len(body),
		"response_time", fetch.ResponseTime,
	)

	return fetch, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

// Parse validates body as JSON and flattens content[].videos[] into video
// items. A null body is an error. A missing or non-array content or videos
// field contributes nothing. VideoCount counts every videos entry, including
// non-object ones that produce no item.
func (s *Source) Parse(batchID string, body []byte) (*domain.Content, error) {
	if !json.Valid(body) {
		return nil, errors.New("decode response: invalid JSON")
	}
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, errors.New("decode response: body is null")
	}

	result := &domain.Content{Version: unknownVersion, Items: []domain.BatchItem{}}

	if !isObject(body) {
		return result, nil
	}

	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if v := bytes.TrimSpace(resp.Version); len(v) > 0 && !bytes.Equal(v, []byte("null")) {
		var version any
		if err := json.Unmarshal(v, &version); err == nil && !isFalsyVersion(version) {
			result.Version = version
		}
	}

	groups, err := asArray[json.RawMessage](resp.Content)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	for _, rawGroup := range groups {
		if !isObject(rawGroup) {
			continue
		}

		var group Group
		if err := json.Unmarshal(rawGroup, &group); err != nil {
			return nil, fmt.Errorf("decode content group: %w", err)
		}

		videos, err := asArray[json.RawMessage](group.Videos)
		if err != nil {
			return nil, fmt.Errorf("decode videos: %w", err)
		}

		result.VideoCount += len(videos)

		for _, rawVideo := range videos {
			if !isObject(rawVideo) {
				s.logger.Warn("skipping malformed video entry", "batch_id", batchID)
				continue
			}

			var video Video
			if err := json.Unmarshal(rawVideo, &video); err != nil {
				return nil, fmt.Errorf("decode video: %w", err)
			}

			item, err := s.toItem(batchID, group.Teacher, video)
			if err != nil {
				return nil, err
			}
			result.Items = append(result.Items, item)
		}
	}

	return result, nil
}

func (s *Source) toItem(batchID string, teacher json.RawMessage, video Video) (domain.BatchItem, error) {
	data := make(map[string]json.RawMessage, len(video.Raw)+1)
	for k, v := range video.Raw {
		data[k] = v
	}
	if len(bytes.TrimSpace(teacher)) > 0 {
		data["teacher"] = teacher
	}

	itemData, err := json.Marshal(data)
	if err != nil {
		return domain.BatchItem{}, fmt.Errorf("encode item data: %w", err)
	}

	item := domain.BatchItem{
		BatchID:    batchID,
		ItemType:   domain.ItemTypeVideo,
		Title:      video.Title,
		ItemData:   types.JSONText(itemData),
		ExternalID: ptr(ExternalID(batchID, video)),
	}

	if len(video.LiveAt) > 0 {
		liveAt, ok := domain.ParseTimestamp(video.LiveAt)
		if !ok {
			s.logger.Warn("failed to parse live_at",
				"batch_id", batchID,
				"external_id", *item.ExternalID,
				"live_at", string(video.LiveAt),
			)
		}
		item.LiveAt = liveAt
	}

	return item, nil
}

func isFalsyVersion(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}

// ExternalID is the video URL, or "{batchID}-{title}" when the URL is absent.
func ExternalID(batchID string, video Video) string {
	if video.VideoURL != "" {
		return video.VideoURL
	}
	title := ""
	if video.Title != nil {
		title = *video.Title
	}
	return batchID + "-" + title
}

func ptr[T any](v T) *T {
	return &v
}
