package cmd

import (
	"errors"
	"fmt"

	"github.com/Aman-CERP/barshelf/internal/config"
	"github.com/Aman-CERP/barshelf/internal/daemon"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

func newDaemonClient(cfg *config.Config) *daemon.Client {
	return daemon.NewClient(daemonConfig(cfg))
}

// rpcError converts daemon error responses into coded errors for the CLI.
func rpcError(err error) error {
	var rpcErr *daemon.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.Code {
	case daemon.ErrCodeNotFound:
		return shelferrors.NotFoundError(rpcErr.Message)
	case daemon.ErrCodeRateLimited:
		se := shelferrors.New(shelferrors.ErrCodeRateLimited, rpcErr.Message, nil)
		if data, ok := rpcErr.RateLimit(); ok {
			se = se.WithSuggestion(fmt.Sprintf("Retry in %ds", data.RetryAfterSeconds))
		}
		return se
	case daemon.ErrCodeUpstream:
		return shelferrors.UpstreamError(rpcErr.Message, nil)
	case daemon.ErrCodeInvalidParams:
		return shelferrors.ValidationError(rpcErr.Message, nil)
	default:
		return shelferrors.New(shelferrors.ErrCodeDaemonFailed, rpcErr.Message, nil)
	}
}
