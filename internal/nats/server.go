package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/monet/internal/logger"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Journal defaults. A session journal holds a few hundred small events, so
// the store limits stay far below what nats-server would reserve by default.
const (
	ServerName = "monet-journal"

	DefaultStartTimeout    = 4 * time.Second
	DefaultDrainTimeout    = 2 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxStore        = 256 << 20 // 256 MiB on disk
	DefaultMaxMemory       = 16 << 20  // 16 MiB in memory
)

// Options configures the embedded journal server.
type Options struct {
	DataDir         string        // JetStream file storage directory
	StartTimeout    time.Duration // how long to wait for the server to accept connections
	DrainTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxStore        int64 // JetStream file storage limit in bytes
	MaxMemory       int64 // JetStream memory storage limit in bytes
}

func (o *Options) applyDefaults() {
	if o.StartTimeout <= 0 {
		o.StartTimeout = DefaultStartTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.MaxStore <= 0 {
		o.MaxStore = DefaultMaxStore
	}
	if o.MaxMemory <= 0 {
		o.MaxMemory = DefaultMaxMemory
	}
}

// Journal is an in-process NATS server with JetStream, a client connection
// to it and the monet event stream. No network port is opened.
type Journal struct {
	opts   Options
	server *server.Server
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Start boots the embedded server under opts.DataDir, connects to it and
// creates or updates the event stream.
func Start(ctx context.Context, opts Options) (*Journal, error) {
	if opts.DataDir == "" {
		return nil, errors.New("journal data directory is required")
	}
	opts.applyDefaults()

	logger.Debug("Starting journal server in %s", opts.DataDir)
	ns, err := server.NewServer(&server.Options{
		ServerName:         ServerName,
		JetStream:          true,
		StoreDir:           opts.DataDir,
		JetStreamMaxStore:  opts.MaxStore,
		JetStreamMaxMemory: opts.MaxMemory,
		DontListen:         true,
		NoSigs:             true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating journal server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(opts.StartTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("journal server not ready after %s", opts.StartTimeout)
	}

	j := &Journal{opts: opts, server: ns}
	j.conn, err = nats.Connect("", nats.InProcessServer(ns), nats.Name(ServerName+"-client"))
	if err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("connecting to journal server: %w", err)
	}
	j.js, err = jetstream.New(j.conn)
	if err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	j.stream, err = SetupStream(ctx, j.js)
	if err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("setting up event stream: %w", err)
	}

	logger.Debug("Journal server ready")
	return j, nil
}

// JetStream returns the JetStream context.
func (j *Journal) JetStream() jetstream.JetStream { return j.js }

// Stream returns the monet event stream.
func (j *Journal) Stream() jetstream.Stream { return j.stream }

// Close drains the client connection and shuts the server down, each within
// its configured timeout. Close is safe to call more than once.
func (j *Journal) Close() error {
	if j.conn != nil {
		drained := make(chan error, 1)
		go func() { drained <- j.conn.Drain() }()
		select {
		case err := <-drained:
			if err != nil {
				logger.Warn("Journal drain failed, closing: %v", err)
				j.conn.Close()
			}
		case <-time.After(j.opts.DrainTimeout):
			logger.Warn("Journal drain timed out after %s, closing", j.opts.DrainTimeout)
			j.conn.Close()
		}
		j.conn = nil
	}

	if j.server == nil {
		return nil
	}
	ns := j.server
	j.server = nil
	ns.Shutdown()

	done := make(chan struct{})
	go func() {
		ns.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		logger.Debug("Journal server stopped")
		return nil
	case <-time.After(j.opts.ShutdownTimeout):
		return fmt.Errorf("journal server shutdown timed out after %s", j.opts.ShutdownTimeout)
	}
}
