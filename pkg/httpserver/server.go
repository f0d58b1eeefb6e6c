package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jaywantadh/peerlink/config"
	"github.com/jaywantadh/peerlink/internal/code"
	"github.com/jaywantadh/peerlink/internal/metadata"
	"github.com/jaywantadh/peerlink/internal/multipart"
	"github.com/jaywantadh/peerlink/internal/offer"
	"github.com/jaywantadh/peerlink/internal/storage"
	"github.com/jaywantadh/peerlink/internal/transfer"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

const (
	msgNotMultipart = "Bad Request: Content-Type must be multipart/form-data"
	msgParseFailed  = "Bad Request: Could not parse file content"
	msgInvalidCode  = "Bad Request: Invalid port number"
	msgTooLarge     = "Request Entity Too Large"
)

// Gateway is the HTTP face of PeerLink: uploads become one-shot offers and
// downloads are relayed from the offer's listener.
type Gateway struct {
	cfg      *config.AppConfig
	log      logrus.FieldLogger
	registry *offer.Registry
	store    storage.Storage
	journal  *metadata.OfferStore
	tracker  *transfer.ProgressTracker
	transfer *transfer.Server
	proxy    *transfer.Proxy

	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// New wires a gateway from cfg. journal may be nil, in which case offers are
// not recorded and status only knows about live transfers.
func New(cfg *config.AppConfig, store storage.Storage, journal *metadata.OfferStore, log logrus.FieldLogger) *Gateway {
	baseCtx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:      cfg,
		log:      log,
		registry: offer.NewRegistry(code.NewRandomGenerator(cfg.CodeMin, cfg.CodeMax), cfg.MaxCodeAttempts),
		store:    store,
		journal:  journal,
		tracker:  transfer.NewProgressTracker(),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}

	var recorder transfer.Recorder
	if journal != nil {
		recorder = journal
	}
	g.transfer = transfer.NewServer(g.registry, store, g.tracker, recorder, log, transfer.ServerOptions{
		Host:          cfg.Host,
		AcceptTimeout: cfg.AcceptTimeout,
		ChunkSize:     cfg.ChunkSize,
	})
	g.proxy = transfer.NewProxy(log, transfer.ProxyOptions{
		PeerHost:    cfg.PeerHost,
		DialTimeout: cfg.DialTimeout,
		ChunkSize:   cfg.ChunkSize,
		Spool:       cfg.SpoolDownloads,
	})

	g.httpServer = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler returns the routed handler wrapped in the CORS middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", g.handleUpload)
	mux.HandleFunc("/download/", g.handleDownload)
	mux.HandleFunc("/status/", g.handleStatus)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})
	return g.cors(mux)
}

func (g *Gateway) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		g.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Request")
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	boundary, err := multipart.BoundaryFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, msgNotMultipart, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, msgTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, msgParseFailed, http.StatusBadRequest)
		return
	}

	field, err := multipart.Extract(body, boundary)
	if err != nil {
		g.log.WithError(err).Debug("Rejected upload body")
		http.Error(w, msgParseFailed, http.StatusBadRequest)
		return
	}

	fileName := field.FileName
	if fileName == "" {
		fileName = transfer.DefaultUploadName
	}

	c, err := g.offer(fileName, field)
	if err != nil {
		g.log.WithError(err).WithField("file", fileName).Error("Upload failed")
		http.Error(w, "Server error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	g.log.WithFields(logrus.Fields{
		"code": c,
		"file": fileName,
		"size": len(field.Content),
	}).Info("File offered")
	transfer.WriteJSONResponse(w, http.StatusOK, transfer.UploadResponse{Port: c})
}

// offer stores the upload, allocates its code and starts the one-shot
// listener. The listener is bound before the code is handed out.
func (g *Gateway) offer(fileName string, field *multipart.Field) (int, error) {
	loc, err := g.store.Put(fileName, field.Content)
	if err != nil {
		return 0, err
	}

	c, err := g.registry.Offer(loc, fileName)
	if err != nil {
		_ = g.store.Remove(loc)
		return 0, err
	}

	if g.journal != nil {
		rec := metadata.NewOfferRecord(c, fileName, field.ContentType, field.Content)
		if err := g.journal.Put(rec); err != nil {
			g.log.WithError(err).WithField("code", c).Warn("Failed to journal offer")
		}
	}

	oneShot, err := g.transfer.Listen(c)
	if err != nil {
		return 0, err
	}
	g.transfer.Go(g.baseCtx, oneShot)
	return c, nil
}

func (g *Gateway) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	c, err := transfer.ParseCode(r.URL.Path)
	if err != nil {
		http.Error(w, msgInvalidCode, http.StatusBadRequest)
		return
	}
	g.proxy.ServeCode(w, r, c)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	c, err := transfer.ParseCode(r.URL.Path)
	if err != nil {
		http.Error(w, msgInvalidCode, http.StatusBadRequest)
		return
	}

	status := transfer.StatusResponse{Code: c}
	found := false

	if p, ok := g.tracker.GetProgress(c); ok {
		found = true
		status.FileName = p.FileName
		status.State = p.State
		status.Outcome = p.Outcome
		status.BytesSent = p.BytesSent
		status.Speed = p.Speed
		status.CreatedAt = p.StartTime
		status.UpdatedAt = p.LastUpdateTime
	}

	if g.journal != nil {
		rec, err := g.journal.Get(c)
		switch {
		case err == nil:
			found = true
			status.FileName = rec.FileName
			status.Size = rec.Size
			status.ContentType = rec.ContentType
			status.DetectedType = rec.DetectedType
			status.Checksum = rec.Checksum
			status.CreatedAt = rec.CreatedAt
			if status.Outcome == "" {
				status.Outcome = rec.Outcome
				status.BytesSent = rec.BytesSent
			}
			if status.UpdatedAt.Before(rec.UpdatedAt) {
				status.UpdatedAt = rec.UpdatedAt
			}
		case !errors.Is(err, metadata.ErrNotFound):
			http.Error(w, "Server error: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if !found {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	transfer.WriteJSONResponse(w, http.StatusOK, status)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	transfer.WriteJSONResponse(w, http.StatusOK, transfer.HealthResponse{
		Status:       "ok",
		ActiveOffers: g.registry.Len(),
	})
}

// Start listens on the configured address and serves until Shutdown.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.cfg.Addr(), err)
	}
	return g.Serve(ln)
}

// Serve serves on ln, capped at MaxConnections concurrent connections when
// that is set.
func (g *Gateway) Serve(ln net.Listener) error {
	if g.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, g.cfg.MaxConnections)
	}
	g.log.WithField("addr", ln.Addr().String()).Info("PeerLink gateway listening")

	err := g.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, lets in-flight downloads finish within
// ctx, then closes every pending one-shot listener and waits for them.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.httpServer.Shutdown(ctx)
	g.cancel()
	g.transfer.Wait()
	return err
}
