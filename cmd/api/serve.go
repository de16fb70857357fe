package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type eventProducer interface {
	Close()
	WaitClosed()
}

// serve runs srv until ctx is done, drains in-flight requests, and only then closes
// the producer so events published while draining are still flushed.
func serve(ctx context.Context, srv httpServer, prod eventProducer, drain time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()

	prod.Close()
	prod.WaitClosed()
	return err
}
