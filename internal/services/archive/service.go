package archive

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"
)

const (
	cdnBaseURL   = "https://cdn.discordapp.com/emojis"
	maxImageSide = 128
	maxImageSize = 2 * 1024 * 1024
	fetchTimeout = 30 * time.Second
	queueDepth   = 256
)

// Service keeps image snapshots of custom emojis in object storage so
// the dashboard can still render emojis after they are deleted from
// Discord. Everything here is best-effort: a failed snapshot is logged
// and never blocks ingestion.
type Service struct {
	client *minio.Client
	bucket string
	http   *http.Client

	queue chan string

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewService connects to MinIO and ensures the bucket exists.
func NewService(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info().Str("bucket", bucket).Msg("Created emoji archive bucket")
	}

	return &Service{
		client: client,
		bucket: bucket,
		http:   &http.Client{Timeout: fetchTimeout},
		queue:  make(chan string, queueDepth),
		seen:   make(map[string]struct{}),
	}, nil
}

// Enqueue schedules an emoji for archival. It never blocks: when the
// queue is full the emoji is simply skipped and will be retried the
// next time it is seen.
func (s *Service) Enqueue(emojiID string) {
	s.mu.Lock()
	if _, ok := s.seen[emojiID]; ok {
		s.mu.Unlock()
		return
	}
	s.seen[emojiID] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queue <- emojiID:
	default:
		s.forget(emojiID)
		log.Warn().Str("emojiId", emojiID).Msg("Archive queue full, skipping emoji")
	}
}

// Run drains the queue until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case emojiID := <-s.queue:
			if err := s.archive(ctx, emojiID); err != nil {
				s.forget(emojiID)
				log.Warn().Err(err).Str("emojiId", emojiID).Msg("Failed to archive emoji")
			}
		}
	}
}

func (s *Service) forget(emojiID string) {
	s.mu.Lock()
	delete(s.seen, emojiID)
	s.mu.Unlock()
}

func (s *Service) archive(ctx context.Context, emojiID string) error {
	objectName := emojiID + ".png"

	_, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}

	data, err := s.fetch(ctx, emojiID)
	if err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := resize.Thumbnail(maxImageSide, maxImageSide, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}

	log.Debug().Str("emojiId", emojiID).Msg("Archived emoji image")
	return nil
}

func (s *Service) fetch(ctx context.Context, emojiID string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s.png?size=%d", cdnBaseURL, emojiID, maxImageSide)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cdn returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageSize)
	}

	return data, nil
}
