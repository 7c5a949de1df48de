// Package form reads multipart chat requests.
package form

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/domain"
)

// MaxAttachmentSize bounds a single attached file
const MaxAttachmentSize = 25 << 20

// IsMultipart reports whether the request carries a multipart body
func IsMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// Attachments reads every file posted under field
func Attachments(c *gin.Context, field string) ([]domain.Attachment, error) {
	mf, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	headers := mf.File[field]
	files := make([]domain.Attachment, 0, len(headers))
	for _, fh := range headers {
		f, err := read(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func read(fh *multipart.FileHeader) (domain.Attachment, error) {
	if fh.Size > MaxAttachmentSize {
		return domain.Attachment{}, fmt.Errorf("%s is larger than %d bytes: %w", fh.Filename, MaxAttachmentSize, domain.ErrInvalidRequest)
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Attachment{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Attachment{}, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return domain.Attachment{Name: fh.Filename, Type: contentType, Data: data}, nil
}
