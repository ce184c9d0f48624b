//go:build !unix

package events

import (
	"context"
	"fmt"
	"runtime"

	"goclockin/internal/timeutil"
)

type SignalSource struct {
	Clock timeutil.Clock
}

func (s *SignalSource) Name() string { return "signals" }

func (s *SignalSource) Start(context.Context, func(Event)) error {
	return fmt.Errorf("%w: user signals are not supported on %s", ErrSystemEvent, runtime.GOOS)
}
