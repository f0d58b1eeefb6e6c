package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrInvalidCode = errors.New("invalid port number")

type ProxyOptions struct {
	// PeerHost is where the one-shot listeners run, normally localhost.
	PeerHost    string
	DialTimeout time.Duration
	ChunkSize   int
	// Spool buffers the whole file in a temp file before answering, so a
	// relay failure can still be reported as a 500.
	Spool    bool
	SpoolDir string
}

// Proxy bridges a download request to the one-shot listener of a code.
type Proxy struct {
	log  logrus.FieldLogger
	opts ProxyOptions
}

func NewProxy(log logrus.FieldLogger, opts ProxyOptions) *Proxy {
	if opts.PeerHost == "" {
		opts.PeerHost = "localhost"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Proxy{log: log, opts: opts}
}

// ParseCode reads the share code from the last segment of a request path.
func ParseCode(path string) (int, error) {
	segment := path[strings.LastIndex(path, "/")+1:]
	code, err := strconv.Atoi(segment)
	if err != nil || code < 1 || code > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCode, segment)
	}
	return code, nil
}

// ServeCode relays the file offered on code to w. Connection failures before
// any byte is written answer 500. Never offered, already consumed and not
// yet listening codes all look the same from here.
func (p *Proxy) ServeCode(w http.ResponseWriter, r *http.Request, code int) {
	entry := p.log.WithField("code", code)

	addr := net.JoinHostPort(p.opts.PeerHost, strconv.Itoa(code))
	dialer := net.Dialer{Timeout: p.opts.DialTimeout}
	conn, err := dialer.DialContext(r.Context(), "tcp", addr)
	if err != nil {
		entry.WithError(err).Warn("Error downloading file from peer")
		downloadError(w, err)
		return
	}
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, p.opts.ChunkSize)
	fileName, err := ReadHeader(reader)
	if err != nil {
		entry.WithError(err).Warn("Error reading transfer header")
		downloadError(w, err)
		return
	}

	if p.opts.Spool {
		p.spool(w, reader, fileName, entry)
		return
	}
	p.stream(w, reader, fileName, entry)
}

func (p *Proxy) stream(w http.ResponseWriter, src io.Reader, fileName string, entry logrus.FieldLogger) {
	setDownloadHeaders(w, fileName)
	w.WriteHeader(http.StatusOK)

	n, err := copyChunks(w, src, p.opts.ChunkSize)
	if err != nil {
		// Headers are gone already; the client sees a truncated body
		entry.WithError(err).WithField("bytes", n).Error("Download relay interrupted")
		return
	}
	entry.WithFields(logrus.Fields{"file": fileName, "bytes": n}).Info("File relayed")
}

func (p *Proxy) spool(w http.ResponseWriter, src io.Reader, fileName string, entry logrus.FieldLogger) {
	tmp, err := os.CreateTemp(p.opts.SpoolDir, "download-*.tmp")
	if err != nil {
		entry.WithError(err).Error("Failed to create spool file")
		downloadError(w, err)
		return
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			entry.WithError(err).Warn("Failed to remove spool file")
		}
	}()

	size, err := copyChunks(tmp, src, p.opts.ChunkSize)
	if err != nil {
		entry.WithError(err).Error("Error downloading file from peer")
		downloadError(w, err)
		return
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		downloadError(w, err)
		return
	}

	setDownloadHeaders(w, fileName)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := copyChunks(w, tmp, p.opts.ChunkSize); err != nil {
		entry.WithError(err).Error("Download relay interrupted")
		return
	}
	entry.WithFields(logrus.Fields{"file": fileName, "bytes": size}).Info("File relayed")
}

var dispositionReplacer = strings.NewReplacer(`"`, "'", "\r", "", "\n", "")

func setDownloadHeaders(w http.ResponseWriter, fileName string) {
	w.Header().Set("Content-Disposition", `attachment; filename="`+dispositionReplacer.Replace(fileName)+`"`)
	w.Header().Set("Content-Type", BinaryContentType)
}

func downloadError(w http.ResponseWriter, err error) {
	http.Error(w, "Error downloading file: "+err.Error(), http.StatusInternalServerError)
}

// copyChunks copies src to dst through a buffer of chunkSize bytes. End of
// stream is the normal end of a transfer.
func copyChunks(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	var total int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, err := dst.Write(buf[:n])
			total += int64(written)
			if err != nil {
				return total, err
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
