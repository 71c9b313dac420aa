// Package edgelogger lets other programs embed the ingestion service.
package edgelogger

import (
	"context"

	"edge-logger/internal/app"
)

// Options re-exposes the app.Options type for external callers.
type Options = app.Options

// Run starts the service with the given options and blocks until ctx is done.
func Run(ctx context.Context, opts Options) error {
	return app.Run(ctx, opts)
}
