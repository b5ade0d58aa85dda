package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
)

const maxJSONBodyBytes = 64 << 10

var (
	errMalformedBody = errors.New("malformed request body")
	errMissingFile   = errors.New("missing file")
	errFileType      = errors.New("invalid file type")
)

// allowedUploadTypes lists the media types browsers send for CSV files.
var allowedUploadTypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
}

// parseCandidate decodes a transaction submission. A key that is absent or
// null stays nil in the candidate; value may be a JSON number or a string.
func parseCandidate(r *http.Request) (core.Candidate, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes+1))
	if err != nil {
		return core.Candidate{}, fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	if len(body) > maxJSONBodyBytes {
		return core.Candidate{}, fmt.Errorf("%w: body exceeds %d bytes", errMalformedBody, maxJSONBodyBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return core.Candidate{}, fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	if fields == nil {
		return core.Candidate{}, fmt.Errorf("%w: expected an object", errMalformedBody)
	}

	return core.Candidate{
		Title:    field(fields, "title"),
		Value:    field(fields, "value"),
		Type:     field(fields, "type"),
		Category: field(fields, "category"),
	}, nil
}

// field renders a present JSON value as text. Values that are neither
// strings nor numbers become "" so the field-level rules reject them.
func field(fields map[string]any, key string) *string {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch v := v.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	}
	return &s
}

// parseFilter reads the optional type and category_id query parameters.
func parseFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	filter := ledger.TransactionFilter{
		Type:       core.TransactionType(strings.TrimSpace(q.Get("type"))),
		CategoryID: strings.TrimSpace(q.Get("category_id")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return ledger.TransactionFilter{}, core.ErrInvalidType
	}
	return filter, nil
}

// openUpload returns the CSV part of a multipart upload. The caller closes
// the file and removes the form.
func openUpload(r *http.Request, maxMemory int64) (multipart.File, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, err
		case errors.Is(err, http.ErrNotMultipart):
			return nil, errMissingFile
		}
		return nil, fmt.Errorf("%w: %w", errMalformedBody, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}

	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if err != nil || !allowedUploadTypes[strings.ToLower(mediaType)] {
		_ = file.Close()
		return nil, errFileType
	}
	return file, nil
}
