// Package mirrorserver re-serves an on-disk mirror root over plain HTTP,
// the Go equivalent of a "python -m http.server" instance pointed at the
// mirror directory. It carries no integrity or pack logic of its own: a
// romt mirror tree is laid out so that files served from it can be
// fetched directly by rustup/cargo pointed at the local re-serving HTTP
// server.
package mirrorserver

import (
	"context"
	"net"
	"net/http"

	"github.com/drmikehenry/romt/internal/log"
)

// Server wraps an http.Server rooted at a mirror directory.
type Server struct {
	httpServer *http.Server
	logger     log.Logger
}

// New builds a Server that serves root's contents over HTTP.
func New(addr, root string, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoop()
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(root)))
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		logger:     logger,
	}
}

// ListenAndServe starts the server and blocks until it stops or ctx is
// canceled, in which case it is shut down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving mirror", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
