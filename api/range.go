package api

import (
	"errors"
	"net/url"
	"path"
	"strconv"
	"strings"

	"polo74/file-api/internal/model"
)

var errInvalidRange = errors.New("invalid range")

// parseRange parses a single "bytes=start-end" header against the
// object size. end is optional and defaults to size-1. Anything
// malformed or outside [0, size-1] is rejected so the caller can
// answer 416 instead of guessing.
func parseRange(header string, size int64) (start, end int64, err error) {
	const prefix = "bytes="

	if !strings.HasPrefix(header, prefix) {
		return 0, 0, errInvalidRange
	}

	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		// Multipart ranges aren't supported
		return 0, 0, errInvalidRange
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return 0, 0, errInvalidRange
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, errInvalidRange
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, errInvalidRange
		}
	}

	if start < 0 || end >= size || start > end {
		return 0, 0, errInvalidRange
	}

	return start, end, nil
}

// resolveStorageKey returns the object store key for a record. New
// rows carry the key explicitly; older rows only have the locator,
// which over the record's life has been either a staging path or a
// full object store URL, so the last path segment works for both.
func resolveStorageKey(f *model.File) string {
	if f.StorageKey != "" {
		return f.StorageKey
	}

	if u, err := url.Parse(f.Path); err == nil && u.Scheme != "" {
		return path.Base(u.Path)
	}

	return path.Base(strings.ReplaceAll(f.Path, "\\", "/"))
}
