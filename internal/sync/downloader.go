package sync

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/media/images"
	"github.com/listenupapp/listenup-client/internal/store"
)

const (
	// maxImageSize limits download size to prevent memory exhaustion.
	maxImageSize = 10 * 1024 * 1024 // 10MB

	// downloadTimeout is the maximum time for a single image download.
	downloadTimeout = 30 * time.Second
)

// Downloader fetches remote cover and contributor images, stores them
// locally, and writes the local path back onto the owning entity.
type Downloader struct {
	httpClient   *http.Client
	covers       *images.Storage
	contributors *images.Storage
	store        *store.Store
	logger       *slog.Logger
}

// NewDownloader creates an image downloader.
func NewDownloader(covers, contributors *images.Storage, st *store.Store, logger *slog.Logger) *Downloader {
	return &Downloader{
		httpClient:   &http.Client{Timeout: downloadTimeout},
		covers:       covers,
		contributors: contributors,
		store:        st,
		logger:       logger,
	}
}

// Download fetches one task's image and updates the owning entity's
// local path field.
func (d *Downloader) Download(ctx context.Context, task *domain.DownloadTask) error {
	storage, err := d.storageFor(task.Kind)
	if err != nil {
		return err
	}

	data, err := d.fetch(ctx, task.URL)
	if err != nil {
		return err
	}

	if width, height, err := parseImageDimensions(data); err != nil {
		d.logWarn("failed to parse image dimensions", err, "entity_id", task.EntityID, "url", task.URL)
		// Continue without dimensions - the image is still usable.
	} else if d.logger != nil {
		d.logger.Debug("downloaded image",
			"kind", string(task.Kind),
			"entity_id", task.EntityID,
			"size", len(data),
			"width", width,
			"height", height,
		)
	}

	if err := storage.Save(task.EntityID, data); err != nil {
		return fmt.Errorf("store image: %w", err)
	}

	return d.updateEntityPath(ctx, task.Kind, task.EntityID, storage.Path(task.EntityID))
}

func (d *Downloader) storageFor(kind domain.ImageKind) (*images.Storage, error) {
	switch kind {
	case domain.ImageKindCover:
		return d.covers, nil
	case domain.ImageKindContributor:
		return d.contributors, nil
	default:
		return nil, fmt.Errorf("unknown image kind %q", kind)
	}
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("empty image URL")
	}

	downloadCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return data, nil
}

// updateEntityPath writes the downloaded image's local path onto the
// entity. A missing entity is not an error: it may have been deleted by
// a pull while the download was in flight.
func (d *Downloader) updateEntityPath(ctx context.Context, kind domain.ImageKind, entityID, path string) error {
	switch kind {
	case domain.ImageKindCover:
		book, err := d.store.Books.Get(ctx, entityID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		book.CoverPath = path
		return d.store.Books.Put(ctx, book)
	case domain.ImageKindContributor:
		contributor, err := d.store.Contributors.Get(ctx, entityID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		contributor.ImagePath = path
		return d.store.Contributors.Put(ctx, contributor)
	default:
		return fmt.Errorf("unknown image kind %q", kind)
	}
}

func (d *Downloader) logWarn(msg string, err error, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, append([]any{"error", err}, args...)...)
	}
}

// parseImageDimensions extracts dimensions from image data.
// Supports JPEG and PNG formats.
func parseImageDimensions(data []byte) (width, height int, err error) {
	if len(data) < 24 {
		return 0, 0, errors.New("data too small")
	}

	if w, h, ok := parseJPEGDimensions(data); ok {
		return w, h, nil
	}

	if w, h, ok := parsePNGDimensions(data); ok {
		return w, h, nil
	}

	return 0, 0, errors.New("unsupported format")
}

// parseJPEGDimensions extracts dimensions from JPEG data.
func parseJPEGDimensions(data []byte) (width, height int, ok bool) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0, 0, false // Not a JPEG
	}

	// Scan for SOF markers
	i := 2
	for i < len(data)-9 {
		if data[i] != 0xFF {
			i++
			continue
		}

		marker := data[i+1]

		// SOF0 (baseline), SOF1 (extended), SOF2 (progressive)
		if marker == 0xC0 || marker == 0xC1 || marker == 0xC2 {
			if i+9 > len(data) {
				return 0, 0, false
			}
			height = int(binary.BigEndian.Uint16(data[i+5 : i+7]))
			width = int(binary.BigEndian.Uint16(data[i+7 : i+9]))
			return width, height, true
		}

		if i+3 >= len(data) {
			break
		}
		segmentLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		i += 2 + segmentLen
	}

	return 0, 0, false
}

// parsePNGDimensions extracts dimensions from PNG data.
func parsePNGDimensions(data []byte) (width, height int, ok bool) {
	pngSig := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	if len(data) < 24 || !bytes.Equal(data[:8], pngSig) {
		return 0, 0, false
	}

	if string(data[12:16]) != "IHDR" {
		return 0, 0, false
	}

	width = int(binary.BigEndian.Uint32(data[16:20]))
	height = int(binary.BigEndian.Uint32(data[20:24]))
	return width, height, true
}
