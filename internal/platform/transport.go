package platform

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// httpDoer is the slice of *http.Client the platform clients depend on.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// guardedDoer fronts one platform upstream with a client-side rate limit and
// a circuit breaker. A dead or throttling upstream fails fast instead of
// stalling every sync behind it; an open breaker surfaces through the clients
// as an unavailable-kind error.
type guardedDoer struct {
	next    httpDoer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newGuardedDoer(name string, next httpDoer, rps float64) *guardedDoer {
	if rps <= 0 {
		rps = 5
	}
	return &guardedDoer{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (d *guardedDoer) Do(req *http.Request) (*http.Response, error) {
	if err := d.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return d.breaker.Execute(func() (*http.Response, error) {
		return d.next.Do(req)
	})
}
