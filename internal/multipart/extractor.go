// Package multipart pulls the first file part out of a fully buffered
// multipart/form-data body.
//
// The body is scanned directly for the structural markers instead of going
// through mime/multipart's streaming reader: uploads are already held in
// memory by the gateway, and the returned content is a verbatim slice of the
// request bytes.
//
// The part headers end at the first blank line after the filename marker, so
// text fields ahead of the file part are skipped. The content ends at the
// nearest of "\r\n--boundary--" and "\r\n--boundary", whichever comes first.
//
// Filenames containing escaped quotes are not supported; the name ends at the
// first '"' after the filename marker.
package multipart

import (
	"bytes"
	"errors"
	"fmt"
)

const DefaultContentType = "application/octet-stream"

var (
	filenameMarker    = []byte(`filename="`)
	contentTypeMarker = []byte("Content-Type: ")
	headerEndMarker   = []byte("\r\n\r\n")
	lineEnd           = []byte("\r\n")
)

var (
	ErrParse           = errors.New("could not parse multipart body")
	ErrNoFilePart      = fmt.Errorf("%w: no file part", ErrParse)
	ErrMalformedPart   = fmt.Errorf("%w: malformed part header", ErrParse)
	ErrNoHeaderEnd     = fmt.Errorf("%w: part headers not terminated", ErrParse)
	ErrNoBoundary      = fmt.Errorf("%w: closing boundary not found", ErrParse)
	ErrNotMultipart    = errors.New("content type is not multipart/form-data")
	ErrNoBoundaryParam = errors.New("multipart content type has no boundary")
)

// Field is the file part of an upload.
type Field struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Extract returns the first file-bearing part of body. Content aliases body.
func Extract(body []byte, boundary string) (*Field, error) {
	if boundary == "" {
		return nil, ErrNoBoundaryParam
	}

	nameStart := indexFrom(body, filenameMarker, 0)
	if nameStart < 0 {
		return nil, ErrNoFilePart
	}
	nameStart += len(filenameMarker)

	nameEnd := indexFrom(body, []byte{'"'}, nameStart)
	if nameEnd < 0 {
		return nil, ErrMalformedPart
	}

	headerEnd := indexFrom(body, headerEndMarker, nameEnd)
	if headerEnd < 0 {
		return nil, ErrNoHeaderEnd
	}

	contentType, err := partContentType(body[:headerEnd+len(lineEnd)], nameEnd)
	if err != nil {
		return nil, err
	}

	contentStart := headerEnd + len(headerEndMarker)
	contentEnd := boundaryIndex(body, boundary, contentStart)
	if contentEnd < 0 || contentEnd <= contentStart {
		return nil, ErrNoBoundary
	}

	return &Field{
		FileName:    string(body[nameStart:nameEnd]),
		ContentType: contentType,
		Content:     body[contentStart:contentEnd],
	}, nil
}

// partContentType looks for the Content-Type header between the filename and
// the end of the part headers.
func partContentType(headers []byte, from int) (string, error) {
	start := indexFrom(headers, contentTypeMarker, from)
	if start < 0 {
		return DefaultContentType, nil
	}
	start += len(contentTypeMarker)

	end := indexFrom(headers, lineEnd, start)
	if end < 0 {
		return "", ErrMalformedPart
	}
	return string(headers[start:end]), nil
}

// boundaryIndex finds where the part starting at from ends: at the closing
// delimiter "\r\n--boundary--" when the part is the last one, or at the next
// "\r\n--boundary" when another part follows. The nearest one wins.
func boundaryIndex(body []byte, boundary string, from int) int {
	closing := []byte("\r\n--" + boundary + "--")
	delimiter := []byte("\r\n--" + boundary)

	end := indexFrom(body, closing, from)
	if next := indexFrom(body, delimiter, from); next >= 0 && (end < 0 || next < end) {
		end = next
	}
	return end
}

// indexFrom returns the index of the first occurrence of seq in data at or
// after from, or -1.
func indexFrom(data, seq []byte, from int) int {
	if from < 0 || from > len(data) {
		return -1
	}
	i := bytes.Index(data[from:], seq)
	if i < 0 {
		return -1
	}
	return from + i
}
