package backend

import (
	"context"

	"github.com/basekick-labs/databayes/internal/logger"
)

// Use connects c, runs fn with it and always closes it afterwards, also when
// fn returns an error or panics.
//
// A failed Connect is logged and fn still runs: adapters keep their handle
// after a failed connect, and the failure surfaces through fn's operations.
func Use[C Connector](ctx context.Context, c C, fn func(C) error) (err error) {
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cerr := c.Connect(ctx); cerr != nil {
		l := logger.Get("backend")
		l.Warn().Err(cerr).Msg("Connect failed, continuing")
	}
	return fn(c)
}
