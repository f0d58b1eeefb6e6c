package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client talks to a gateway on behalf of the CLI.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client. A zero timeout leaves long transfers to
// the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DownloadURL is the address a downloader fetches code from.
func (c *Client) DownloadURL(code int) string {
	return c.baseURL + "/download/" + strconv.Itoa(code)
}

// Upload offers the file at filePath and returns its share code.
func (c *Client) Upload(ctx context.Context, filePath string) (int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("upload failed: %s - %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var response UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("invalid upload response: %w", err)
	}
	return response.Port, nil
}

// Download fetches the file offered on code into destDir and returns the
// path written. The file is named after the Content-Disposition filename.
func (c *Client) Download(ctx context.Context, code int, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(code), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("download failed: %s - %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	target := filepath.Join(destDir, attachmentName(resp.Header.Get("Content-Disposition")))
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(target)
		return "", fmt.Errorf("download interrupted: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return target, nil
}

// attachmentName extracts a safe base file name from a Content-Disposition
// header value.
func attachmentName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultDownloadName
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == ".." || name == "" {
		return DefaultDownloadName
	}
	return name
}
