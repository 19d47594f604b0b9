// Package sweep reclaims dangling reservations: debits whose caller never
// confirmed or cancelled (a crashed handler, a lost response). Without it a
// reserve without resolution holds credits forever.
package sweep

import (
	"context"
	"log"
	"time"
)

// Canceller is the slice of the ledger service the sweeper needs.
type Canceller interface {
	CancelExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper periodically refunds reservations older than MaxAge.
type Sweeper struct {
	svc      Canceller
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Sweeper. interval controls how often the sweep runs; maxAge
// is how old a reservation must be before it is refunded. maxAge must
// comfortably exceed the longest legitimate external operation.
func New(svc Canceller, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop terminates the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			refunded, err := s.svc.CancelExpired(ctx, s.maxAge)
			cancel()
			if err != nil {
				log.Printf("credits sweep: %v", err)
				continue
			}
			if refunded > 0 {
				log.Printf("credits sweep: refunded %d expired reservations", refunded)
			}
		}
	}
}
