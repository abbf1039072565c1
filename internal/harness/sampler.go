package harness

import (
	"net"
	"sync/atomic"
	"time"
)

const (
	// DefaultThrottle is the minimum interval between latency probes
	// while a transfer is in flight.
	DefaultThrottle = 400 * time.Millisecond

	// DefaultMinRequestDuration is how long a transfer must have been
	// running before its latency probes count. Shorter transfers finish
	// before they meaningfully load the link.
	DefaultMinRequestDuration = 250 * time.Millisecond

	// samplerGrace bounds how long a transfer waits for its probe
	// goroutine to notice the stop flag.
	samplerGrace = 100 * time.Millisecond
)

// SamplerCadence controls how often the loaded-latency probe fires.
type SamplerCadence struct {
	Throttle           time.Duration
	MinRequestDuration time.Duration
}

// DefaultCadence returns the standard probe cadence.
func DefaultCadence() SamplerCadence {
	return SamplerCadence{
		Throttle:           DefaultThrottle,
		MinRequestDuration: DefaultMinRequestDuration,
	}
}

type samplerSpec struct {
	samples chan<- float64
	cadence SamplerCadence
}

// sampler probes TCP latency in the background while a transfer loads
// the link. Samples go out on a channel with a non-blocking send, so a
// slow consumer drops samples rather than stalling the probe.
type sampler struct {
	stop atomic.Bool
	done chan struct{}
}

// startSampler launches the probe goroutine. It waits out the throttle
// interval between probes, skips probes while the transfer is younger
// than the minimum request duration, and exits when the stop flag is
// set.
func (h *Harness) startSampler(ip net.IP, requestStart time.Time, cadence SamplerCadence, samples chan<- float64) *sampler {
	s := &sampler{done: make(chan struct{})}

	go func() {
		defer close(s.done)

		last := time.Now()
		for {
			if s.stop.Load() {
				return
			}

			if since := time.Since(last); since < cadence.Throttle {
				time.Sleep(cadence.Throttle - since)
			}

			if s.stop.Load() {
				return
			}

			if time.Since(requestStart) >= cadence.MinRequestDuration {
				if latencyMs, err := h.MeasureTCPLatency(ip); err == nil {
					select {
					case samples <- latencyMs:
					default:
					}
				}
			}

			last = time.Now()
		}
	}()

	return s
}

// stopAndWait signals the probe goroutine to exit and waits for it, up
// to the grace period. A probe blocked in a slow connect is abandoned
// rather than waited on.
func (s *sampler) stopAndWait() {
	s.stop.Store(true)
	select {
	case <-s.done:
	case <-time.After(samplerGrace):
	}
}
