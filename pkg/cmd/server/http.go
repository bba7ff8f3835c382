package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mpapenbr/trackside/log"
)

const shutdownTimeout = 5 * time.Second

// NewHTTPServer wraps h with tracing and a permissive CORS setup.
// HTTP/2 without TLS is accepted.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	//nolint:gosec // by design
	return &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(
			newCORS().Handler(otelhttp.NewHandler(h, "trackside.api")),
			&http2.Server{}),
	}
}

// Serve runs srv until ctx is done and shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	logger := log.GetFromContext(ctx).Named("http")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", log.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// open event streams only end with their clients, so close what is left
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", log.ErrorField(err))
		return srv.Close()
	}
	logger.Info("HTTP server stopped")
	return nil
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func newCORS() *cors.Cors {
	// browser dashboards are served from other origins
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
