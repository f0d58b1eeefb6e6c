package transfer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Wire protocol of the one-shot connection: a single header line
// "Filename: <name>\n" followed by the raw file bytes until the server closes
// the connection. There is no length prefix and no acknowledgement.
const (
	HeaderPrefix        = "Filename: "
	DefaultChunkSize    = 4096
	DefaultUploadName   = "unnamed-file"
	DefaultDownloadName = "downloaded-file"
	BinaryContentType   = "application/octet-stream"

	maxHeaderLen = 4096
)

var (
	ErrHeaderTooLong    = errors.New("transfer header exceeds limit")
	ErrHeaderIncomplete = errors.New("connection closed before transfer header")
)

var headerNameReplacer = strings.NewReplacer("\r", "", "\n", "")

// WriteHeader sends the transfer header for name. Line breaks in the name
// are dropped so the header always stays a single line.
func WriteHeader(w io.Writer, name string) error {
	_, err := io.WriteString(w, HeaderPrefix+headerNameReplacer.Replace(name)+"\n")
	return err
}

// ReadHeader consumes the header line from r one byte at a time, leaving r
// positioned at the first payload byte. The sender always terminates the
// header, so end of stream before the line terminator means it failed before
// sending anything and yields ErrHeaderIncomplete. A line without the
// Filename prefix, or with an empty name, yields DefaultDownloadName.
func ReadHeader(r *bufio.Reader) (string, error) {
	var line strings.Builder
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return "", fmt.Errorf("%w after %d bytes", ErrHeaderIncomplete, line.Len())
		}
		if err != nil {
			return "", fmt.Errorf("failed to read transfer header: %w", err)
		}
		if b == '\n' {
			break
		}
		if line.Len() >= maxHeaderLen {
			return "", ErrHeaderTooLong
		}
		line.WriteByte(b)
	}

	header := strings.TrimSpace(line.String())
	name, ok := strings.CutPrefix(header, HeaderPrefix)
	if !ok || name == "" {
		return DefaultDownloadName, nil
	}
	return name, nil
}

// UploadResponse is returned to the uploader once the offer is listening.
type UploadResponse struct {
	Port int `json:"port"`
}

// StatusResponse describes an offer for the status endpoint.
type StatusResponse struct {
	Code         int       `json:"code"`
	FileName     string    `json:"file_name"`
	State        State     `json:"state"`
	Outcome      string    `json:"outcome,omitempty"`
	BytesSent    int64     `json:"bytes_sent"`
	Speed        float64   `json:"bytes_per_second,omitempty"`
	Size         int64     `json:"size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	DetectedType string    `json:"detected_type,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HealthResponse is served by the health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	ActiveOffers int    `json:"active_offers"`
}

// Response helpers
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}
