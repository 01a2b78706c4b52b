package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// CartSweeper releases expired cart reservations and deactivates stale carts.
type CartSweeper interface {
	ReleaseExpired(ctx context.Context) (int, error)
	DeactivateStale(ctx context.Context) (int, error)
}

// CheckoutExpirer expires payment-eligible orders past the checkout TTL.
type CheckoutExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Scheduler runs the periodic expiry sweeps. Both sweep bodies are exported
// so tests drive them synchronously without wall-clock waiting; the tickers
// only provide cadence.
type Scheduler struct {
	carts  CartSweeper
	orders CheckoutExpirer

	cartInterval     time.Duration
	checkoutInterval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(carts CartSweeper, orders CheckoutExpirer, cartInterval, checkoutInterval time.Duration) *Scheduler {
	return &Scheduler{
		carts:            carts,
		orders:           orders,
		cartInterval:     cartInterval,
		checkoutInterval: checkoutInterval,
		stop:             make(chan struct{}),
	}
}

// Start launches both sweep loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, s.cartInterval, s.RunCartSweep)
	go s.loop(ctx, s.checkoutInterval, s.RunCheckoutSweep)
	log.Printf("🕒 [SCHEDULER] sweeps started (cart every %s, checkout every %s)", s.cartInterval, s.checkoutInterval)
}

// Stop halts the loops and waits for in-flight sweeps.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, sweep func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunCartSweep releases expired reservations and deactivates stale carts.
func (s *Scheduler) RunCartSweep(ctx context.Context) {
	if _, err := s.carts.ReleaseExpired(ctx); err != nil {
		log.Printf("❌ [RESERVATION SWEEP] failed: %v", err)
	}
	if _, err := s.carts.DeactivateStale(ctx); err != nil {
		log.Printf("❌ [CART SWEEP] failed: %v", err)
	}
}

// RunCheckoutSweep expires abandoned in-flight checkouts.
func (s *Scheduler) RunCheckoutSweep(ctx context.Context) {
	if _, err := s.orders.ExpireStale(ctx); err != nil {
		log.Printf("❌ [CHECKOUT SWEEP] failed: %v", err)
	}
}
