package app

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

const thumbnailMaxSide = 320

// MediaUpload is a file to attach to a message.
type MediaUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// MediaRef describes an uploaded attachment.
type MediaRef struct {
	URL          string
	ThumbnailURL string
	Name         string
	Size         int64
	MimeType     string
}

func (r MediaRef) urls() []string {
	out := []string{r.URL}
	if r.ThumbnailURL != "" {
		out = append(out, r.ThumbnailURL)
	}
	return out
}

// MediaTypeFor picks the message type for a MIME type.
func MediaTypeFor(contentType string) domain.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.MessageTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return domain.MessageTypeVideo
	default:
		return domain.MessageTypeDocument
	}
}

func newUploadTag() string { return uuid.NewString()[:8] }

// UploadMedia stores an attachment under media/<unix millis>_<tag>_<name>. Images also get a
// JPEG thumbnail under the same tag; a thumbnail failure is logged and does not fail the upload.
func (p *Pipeline) UploadMedia(ctx context.Context, upload MediaUpload) (MediaRef, error) {
	name := sanitizeFileName(upload.FileName)
	if name == "" {
		return MediaRef{}, &domain.ValidationError{Field: "file_name", Reason: "is required"}
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := p.clock.Now()
	tag := p.uploadTag()
	key := domain.MediaKey(now, tag, name)
	url, err := p.blobs.Put(ctx, key, contentType, upload.Data)
	if err != nil {
		p.logger.ErrorContext(ctx, "Media upload failed", "key", key, "error", err)
		return MediaRef{}, &domain.BlobError{Op: "put", Ref: key, Err: err}
	}
	ref := MediaRef{
		URL:      url,
		Name:     name,
		Size:     int64(len(upload.Data)),
		MimeType: contentType,
	}

	if MediaTypeFor(contentType) == domain.MessageTypeImage {
		thumb, err := GenerateThumbnail(upload.Data)
		if err != nil {
			p.logger.WarnContext(ctx, "Could not generate thumbnail", "key", key, "error", err)
			return ref, nil
		}
		thumbKey := domain.MediaKey(now, tag, "thumb_"+strings.TrimSuffix(name, path.Ext(name))+".jpg")
		thumbURL, err := p.blobs.Put(ctx, thumbKey, "image/jpeg", thumb)
		if err != nil {
			p.logger.WarnContext(ctx, "Could not store thumbnail", "key", thumbKey, "error", err)
			return ref, nil
		}
		ref.ThumbnailURL = thumbURL
	}
	return ref, nil
}

// GenerateThumbnail scales an image down to fit a 320x320 box and encodes it as JPEG.
// Smaller images are not enlarged.
func GenerateThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, thumbnailMaxSide, thumbnailMaxSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeFileName keeps the base name and drops characters that break object keys.
func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '?', '#', '%', '"', '<', '>', '|', '*', ':':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
}
