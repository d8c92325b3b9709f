package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"strings"

	"blango/internal/media"
	"blango/internal/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageMaxUploadSizeMB = 10
	FullSizeMax                 = 2048
	ThumbnailSize               = 100
	SquareCropSize              = 200
	WebPQuality                 = 80
)

// UploadImageInput is a raw hero image upload.
type UploadImageInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ImageService decodes uploads and writes the hero image renditions.
type ImageService struct {
	store              media.Store
	maxUploadSizeBytes int64
}

func NewImageService(store media.Store, maxUploadSizeMB int) *ImageService {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = DefaultImageMaxUploadSizeMB
	}
	return &ImageService{
		store:              store,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// StoreHero validates the upload, renders every rendition around the point of
// interest (x, y) and returns the base key the renditions were written under.
func (s *ImageService) StoreHero(ctx context.Context, postID uint, in UploadImageInput, x, y float64) (string, error) {
	if len(in.Content) == 0 {
		return "", models.NewFieldError("image", "No file was submitted.")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return "", models.NewFieldError("image", fmt.Sprintf("File too large (max %dMB).", s.maxUploadSizeBytes/(1024*1024)))
	}
	detected := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detected) {
		return "", models.NewFieldError("image", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return "", models.NewFieldError("image", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}

	base := fmt.Sprintf("hero/%d/%s", postID, uuid.NewString())
	renditions := map[string]image.Image{
		media.RenditionFull:       resizeToFit(decoded, FullSizeMax, FullSizeMax),
		media.RenditionThumbnail:  resizeToFit(decoded, ThumbnailSize, ThumbnailSize),
		media.RenditionSquareCrop: cropAround(decoded, SquareCropSize, SquareCropSize, x, y),
	}

	var written []string
	for _, name := range media.Renditions {
		encoded, err := encodeWebP(renditions[name], WebPQuality)
		if err != nil {
			s.remove(ctx, written)
			return "", models.NewInternalError(err)
		}
		key := media.RenditionKey(base, name)
		if err := s.store.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), "image/webp"); err != nil {
			s.remove(ctx, written)
			return "", models.NewInternalError(err)
		}
		written = append(written, key)
	}
	return base, nil
}

// RemoveHero deletes the renditions stored under base. Missing objects are ignored.
func (s *ImageService) RemoveHero(ctx context.Context, base string) {
	if base == "" {
		return
	}
	keys := make([]string, 0, len(media.Renditions))
	for _, name := range media.Renditions {
		keys = append(keys, media.RenditionKey(base, name))
	}
	s.remove(ctx, keys)
}

func (s *ImageService) remove(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = s.store.Delete(ctx, key)
	}
}

// cropAround scales src to cover w×h and crops it, keeping the point (px, py)
// given in relative coordinates as close to the centre as the edges allow.
func cropAround(src image.Image, w, h int, px, py float64) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return src
	}

	scale := max(float64(w)/float64(sw), float64(h)/float64(sh))
	scaledW := max(int(float64(sw)*scale+0.5), w)
	scaledH := max(int(float64(sh)*scale+0.5), h)
	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, xdraw.Over, nil)

	left := clamp(int(px*float64(scaledW))-w/2, 0, scaledW-w)
	top := clamp(int(py*float64(scaledH))-h/2, 0, scaledH-h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), scaled, image.Point{X: left, Y: top}, draw.Src)
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
