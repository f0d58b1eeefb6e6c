package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jaywantadh/peerlink/internal/offer"
	"github.com/jaywantadh/peerlink/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownOffer = errors.New("no file offered on code")
	ErrOfferExpired = errors.New("offer expired before a downloader connected")
	ErrCancelled    = errors.New("offer cancelled")
)

// Recorder receives the final outcome of every offer.
type Recorder interface {
	Finish(code int, outcome string, bytesSent int64) error
}

type ServerOptions struct {
	// Host the one-shot listeners bind to; empty means all interfaces.
	Host string
	// AcceptTimeout bounds the wait for a downloader. Zero waits forever.
	AcceptTimeout time.Duration
	ChunkSize     int
}

// Server runs one-shot listeners for registered offers. Every listener
// accepts a single connection, streams the header and the file, and is then
// discarded together with its registry entry and stored upload.
type Server struct {
	registry *offer.Registry
	store    storage.Storage
	tracker  *ProgressTracker
	recorder Recorder
	log      logrus.FieldLogger
	opts     ServerOptions
	wg       sync.WaitGroup
}

// NewServer creates a transfer server. recorder may be nil.
func NewServer(
	registry *offer.Registry,
	store storage.Storage,
	tracker *ProgressTracker,
	recorder Recorder,
	log logrus.FieldLogger,
	opts ServerOptions,
) *Server {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Server{
		registry: registry,
		store:    store,
		tracker:  tracker,
		recorder: recorder,
		log:      log,
		opts:     opts,
	}
}

// OneShot is a bound listener waiting for the single downloader of an offer.
type OneShot struct {
	offer    offer.Offer
	listener net.Listener
	server   *Server
}

func (o *OneShot) Code() int { return o.offer.Code }

// Listen binds the listener for code. A bind failure releases the offer.
func (s *Server) Listen(code int) (*OneShot, error) {
	o, ok := s.registry.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownOffer, code)
	}
	s.tracker.StartTracking(code, o.FileName)

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(code))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.release(o, OutcomeFailed, 0)
		return nil, fmt.Errorf("failed to bind one-shot listener on %s: %w", addr, err)
	}
	s.tracker.SetState(code, StateListening)

	s.log.WithFields(logrus.Fields{
		"code": code,
		"file": o.FileName,
	}).Info("Serving file")

	return &OneShot{offer: o, listener: listener, server: s}, nil
}

// Go serves the one-shot on its own goroutine.
func (s *Server) Go(ctx context.Context, o *OneShot) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := o.Serve(ctx)
		entry := s.log.WithField("code", o.Code())
		switch {
		case err == nil:
		case errors.Is(err, ErrOfferExpired), errors.Is(err, ErrCancelled):
			entry.WithError(err).Info("One-shot listener closed without a download")
		default:
			entry.WithError(err).Error("One-shot transfer failed")
		}
	}()
}

// Wait blocks until every one-shot started with Go has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Serve accepts exactly one connection and sends the offered file on it.
// The listener is closed right after the accept, so any later dial is
// refused. Cancelling ctx closes the listener and any open connection.
func (o *OneShot) Serve(ctx context.Context) error {
	s := o.server
	code := o.offer.Code

	stopListener := context.AfterFunc(ctx, func() { o.listener.Close() })
	defer stopListener()

	if s.opts.AcceptTimeout > 0 {
		if tl, ok := o.listener.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(s.opts.AcceptTimeout))
		}
	}

	conn, err := o.listener.Accept()
	o.listener.Close()
	if err != nil {
		var netErr net.Error
		switch {
		case ctx.Err() != nil:
			s.release(o.offer, OutcomeCancelled, 0)
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case errors.As(err, &netErr) && netErr.Timeout():
			s.release(o.offer, OutcomeExpired, 0)
			return ErrOfferExpired
		default:
			s.release(o.offer, OutcomeFailed, 0)
			return fmt.Errorf("accept on port %d: %w", code, err)
		}
	}
	defer conn.Close()

	stopConn := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopConn()

	s.tracker.SetState(code, StateConnected)
	s.log.WithFields(logrus.Fields{
		"code":   code,
		"remote": conn.RemoteAddr().String(),
	}).Info("Client connected")

	sent, err := s.send(conn, o.offer)
	if err != nil {
		s.release(o.offer, OutcomeFailed, sent)
		return fmt.Errorf("sending file to %s: %w", conn.RemoteAddr(), err)
	}

	s.release(o.offer, OutcomeServed, sent)
	s.log.WithFields(logrus.Fields{
		"code":   code,
		"file":   o.offer.FileName,
		"bytes":  sent,
		"remote": conn.RemoteAddr().String(),
	}).Info("File sent")
	return nil
}

// send writes the header and then the stored bytes in fixed-size chunks.
func (s *Server) send(conn net.Conn, o offer.Offer) (int64, error) {
	src, err := s.store.Open(o.Location)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	s.tracker.SetState(o.Code, StateSending)
	if err := WriteHeader(conn, o.FileName); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	return copyChunks(&progressWriter{w: conn, tracker: s.tracker, code: o.Code}, src, s.opts.ChunkSize)
}

// progressWriter reports every chunk written to the tracker.
type progressWriter struct {
	w       io.Writer
	tracker *ProgressTracker
	code    int
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.tracker.AddBytes(p.code, n)
	return n, err
}

// release makes the offer single-use: the stored upload is deleted, the
// outcome recorded and only then the code freed, so a new offer on the same
// code never inherits this outcome.
func (s *Server) release(o offer.Offer, outcome string, sent int64) {
	if err := s.store.Remove(o.Location); err != nil {
		s.log.WithError(err).WithField("code", o.Code).Warn("Failed to remove stored upload")
	}

	s.tracker.Finish(o.Code, outcome)
	if s.recorder != nil {
		if err := s.recorder.Finish(o.Code, outcome, sent); err != nil {
			s.log.WithError(err).WithField("code", o.Code).Warn("Failed to record offer outcome")
		}
	}

	s.registry.Remove(o.Code)
}
