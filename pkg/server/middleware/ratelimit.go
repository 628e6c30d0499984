package middleware

import (
	"net/http"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const rateLimitPrefix = "opsagent"

// NewRateLimiter returns middleware allowing rate requests per client IP,
// with rate in the limiter format ("60-M", "10-S"). An empty rate yields
// nil, meaning no limit.
func NewRateLimiter(rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		return nil, nil
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}

	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
	mw := stdlib.NewMiddleware(
		limiter.New(store, parsed),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, http.StatusInternalServerError, err.Error())
		}),
	)
	return mw.Handler, nil
}
