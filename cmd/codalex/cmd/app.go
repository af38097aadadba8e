package cmd

import (
	"context"

	"github.com/brindle-dev/codalex/internal/bootstrap"
)

// openApp is a thin alias over internal/bootstrap.Open so every
// subcommand in this package shares one construction path with
// cmd/codalexd's daemon loop.
func openApp(ctx context.Context, dir string) (*bootstrap.App, error) {
	return bootstrap.Open(ctx, dir)
}
