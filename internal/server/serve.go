package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// ShutdownTimeout bounds the graceful drain of in-flight requests.
const ShutdownTimeout = 15 * time.Second

// Serve runs handler on ln until ctx is cancelled, then shuts down
// gracefully. Request contexts inherit ctx's values (including the logger)
// but not its cancellation.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	base := context.WithoutCancel(ctx)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return base
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	tflog.SubsystemInfo(ctx, Subsystem, "Listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	tflog.SubsystemInfo(ctx, Subsystem, "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(base, ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
