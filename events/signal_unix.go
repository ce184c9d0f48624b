//go:build unix

package events

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"goclockin/internal/timeutil"
)

// SignalSource maps SIGUSR1 to wake and SIGUSR2 to sleep so external
// suspend hooks can drive the daemon.
type SignalSource struct {
	Clock timeutil.Clock
}

func (s *SignalSource) Name() string { return "signals" }

func (s *SignalSource) Start(ctx context.Context, submit func(Event)) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.Real()
	}
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				kind := KindWake
				if sig == syscall.SIGUSR2 {
					kind = KindSleep
				}
				submit(Event{Kind: kind, At: clock.Now(), Origin: s.Name()})
			}
		}
	}()
	return nil
}
