// Package validators contains validators found throughout the application
// that have been abstracted away from the main code
package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrNoFile              = errors.New("no file provided")
)

const maxFileNameSize = 255

// FileValidator checks an uploaded file against the configured size cap
// and MIME allow-list. It returns the opened file rewound to the start,
// plus an HTTP status code when validation fails.
func FileValidator(fh *multipart.FileHeader) (int, multipart.File, error) {
	if fh == nil {
		return http.StatusBadRequest, nil, ErrNoFile
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, nil, ErrFileNameTooLong
	}

	maxFileSize := viper.GetInt64("upload.max_size")
	if fh.Size > maxFileSize {
		return http.StatusRequestEntityTooLarge, nil, ErrFileTooLarge
	}

	allowed := viper.GetStringSlice("upload.allowed_types")

	// Check headers first which is easy to spoof, but faster for legit clients
	if !slices.Contains(allowed, fh.Header.Get("Content-Type")) {
		return http.StatusBadRequest, nil, ErrFileTypeUnsupported
	}

	// And now do the checks on the actual file to avoid
	// malicious clients
	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}

	sniffed := false
	for _, t := range allowed {
		if mime.Is(t) {
			sniffed = true
			break
		}
	}

	if !sniffed {
		return http.StatusBadRequest, nil, ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return http.StatusInternalServerError, nil, err
	}

	return 0, f, nil
}
