package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/synaptica-ai/casereview/pkg/common/apperr"
)

const PDFContentType = "application/pdf"

var (
	ErrTooLarge       = errors.New("file exceeds the upload size limit")
	ErrNotPDF         = errors.New("only PDF files can be uploaded")
	ErrEmptyFile      = errors.New("file is empty")
	ErrMissingName    = errors.New("file name required")
	errNoValidatorCfg = errors.New("validator not initialised")
)

// File is one candidate upload. Open is called only after validation passes.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FromPath describes a local file, inferring the content type from the
// extension.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

type Validator struct {
	maxBytes     int64
	allowedTypes map[string]struct{}
}

func NewValidator(maxBytes int64, contentTypes ...string) *Validator {
	if len(contentTypes) == 0 {
		contentTypes = []string{PDFContentType}
	}
	allowed := make(map[string]struct{}, len(contentTypes))
	for _, ct := range contentTypes {
		if trimmed := strings.TrimSpace(strings.ToLower(ct)); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &Validator{maxBytes: maxBytes, allowedTypes: allowed}
}

func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Validate runs before any network call. A rejected file is never uploaded.
func (v *Validator) Validate(f File) error {
	if v == nil {
		return apperr.WrapValidation("file", errNoValidatorCfg)
	}
	if strings.TrimSpace(f.Name) == "" {
		return apperr.WrapValidation("file", ErrMissingName)
	}
	if f.Size <= 0 {
		return apperr.WrapValidation("file", fmt.Errorf("%s: %w", f.Name, ErrEmptyFile))
	}
	if v.maxBytes > 0 && f.Size > v.maxBytes {
		return apperr.WrapValidation("file", fmt.Errorf("%s is %s, over the %s limit: %w",
			f.Name, humanBytes(f.Size), humanBytes(v.maxBytes), ErrTooLarge))
	}
	mediaType := normalizeType(f.ContentType)
	if _, ok := v.allowedTypes[mediaType]; !ok {
		shown := mediaType
		if shown == "" {
			shown = "unknown type"
		}
		return apperr.WrapValidation("file", fmt.Errorf("%s (%s): %w", f.Name, shown, ErrNotPDF))
	}
	return nil
}

func normalizeType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(ct)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.0f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
