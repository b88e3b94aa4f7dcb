package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/flowbench/flowbench/agent/internal/config"
	"github.com/flowbench/flowbench/agent/internal/spool"
	"github.com/flowbench/flowbench/pkg/rpc"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Stats counts shipper outcomes since start.
type Stats struct {
	Delivered uint64
	Discarded uint64
	Evicted   uint64
}

// Shipper buffers spool records and ships them to flowbench-server via gRPC.
// Ship() is non-blocking; when the buffer is full the oldest record is evicted.
// Run() must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan spool.Record
	dialFn dialFunc // injectable for tests

	// pending is a record whose last send failed transiently. Only Run's
	// goroutine touches it.
	pending *spool.Record

	delivered atomic.Uint64
	discarded atomic.Uint64
	evicted   atomic.Uint64
}

// dialFunc opens a gRPC connection. Abstracted so tests can dial an
// in-process server.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan spool.Record, size),
		dialFn: defaultDial,
	}
}

// Ship enqueues rec. If the buffer is full the oldest entry is evicted to
// make room.
func (s *Shipper) Ship(rec spool.Record) {
	for {
		select {
		case s.buf <- rec:
			return
		default:
		}
		select {
		case old := <-s.buf:
			s.evicted.Add(1)
			slog.Warn("shipper: buffer full, evicted oldest record",
				"workflow", old.WorkflowID, "kind", old.Kind, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Stats returns delivery counters.
func (s *Shipper) Stats() Stats {
	return Stats{
		Delivered: s.delivered.Load(),
		Discarded: s.discarded.Load(),
		Evicted:   s.evicted.Load(),
	}
}

// Run drains the buffer, sending records to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)

		err = s.drain(ctx, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain sends records until the connection fails or ctx is cancelled. The
// backoff resets after the first successful send on this connection.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn, bo *backoff) error {
	client := rpc.NewRecordServiceClient(conn)

	for {
		var rec spool.Record
		if s.pending != nil {
			rec, s.pending = *s.pending, nil
		} else {
			select {
			case <-ctx.Done():
				return nil
			case rec = <-s.buf:
			}
		}

		ack, err := s.send(ctx, client, rec)
		if err != nil {
			// Permanent errors mean the record itself is unacceptable.
			if isPermanentError(err) {
				s.discarded.Add(1)
				slog.Error("shipper: permanent send error, discarding record",
					"workflow", rec.WorkflowID, "kind", rec.Kind, "err", err)
				continue
			}
			s.pending = &rec
			return fmt.Errorf("send: %w", err)
		}

		bo.reset()
		if !ack.OK {
			s.discarded.Add(1)
			slog.Warn("shipper: server rejected record",
				"workflow", rec.WorkflowID, "kind", rec.Kind, "message", ack.Message)
			continue
		}
		s.delivered.Add(1)
		slog.Debug("shipper: record delivered", "workflow", rec.WorkflowID, "kind", rec.Kind, "id", ack.ID)
	}
}

func (s *Shipper) send(ctx context.Context, client rpc.RecordServiceClient, rec spool.Record) (*rpc.Ack, error) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if s.cfg.ServerAuth.Mode == "apikey" && s.cfg.ServerAuth.KeyEnv != "" {
		sendCtx = metadata.AppendToOutgoingContext(sendCtx,
			s.cfg.ServerAuth.Header, s.cfg.ServerAuth.Key())
	}

	switch rec.Kind {
	case spool.KindNode:
		return client.RecordNode(sendCtx, toNodeEvent(rec))
	default:
		return client.RecordExecution(sendCtx, toExecutionEvent(rec, s.cfg.PrincipalID))
	}
}

// isPermanentError returns true for gRPC errors that indicate the record
// itself is invalid and should not be retried.
func isPermanentError(err error) bool {
	code := status.Code(err)
	switch code {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // DialContext kept for compat
}

// dialOptions builds grpc.DialOption slice based on the server auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	switch cfg.ServerAuth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(cfg.ServerAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default:
		// "apikey" injects its key per call in send(); "none" is local dev.
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
