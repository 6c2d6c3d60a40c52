package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// MediaURLPrefix is the public path uploaded files are served under.
const MediaURLPrefix = "/uploads/"

// Allowed image MIME types.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// MediaService stores question images on local disk.
type MediaService struct {
	dir      string
	maxBytes int64
}

// NewMediaService creates a new MediaService writing under dir.
func NewMediaService(dir string, maxBytes int64) *MediaService {
	return &MediaService{dir: dir, maxBytes: maxBytes}
}

// Upload saves an uploaded image with a UUID filename and returns its URL.
// The declared content type must match the sniffed one.
func (s *MediaService) Upload(actor model.Actor, file multipart.File, header *multipart.FileHeader) (string, error) {
	if !actor.IsStaff() {
		return "", fmt.Errorf("%w: staff only", ErrAuthorization)
	}

	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}
	if header.Size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.maxBytes)
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if detected := http.DetectContentType(sniff[:n]); detected != contentType {
		return "", fmt.Errorf("%w: content is %s", ErrUnsupportedFileType, detected)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := dst.Write(sniff[:n]); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if _, err := io.Copy(dst, io.LimitReader(file, s.maxBytes)); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return MediaURLPrefix + filename, nil
}

// Delete removes a previously uploaded file by its URL.
func (s *MediaService) Delete(actor model.Actor, url string) error {
	if !actor.IsStaff() {
		return fmt.Errorf("%w: staff only", ErrAuthorization)
	}

	name := strings.TrimPrefix(url, MediaURLPrefix)
	if name == url || name == "" || name != filepath.Base(name) {
		return validationf("not an uploaded media url: %q", url)
	}
	if _, err := uuid.Parse(strings.TrimSuffix(name, filepath.Ext(name))); err != nil {
		return validationf("not an uploaded media url: %q", url)
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: media %s", ErrNotFound, name)
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
