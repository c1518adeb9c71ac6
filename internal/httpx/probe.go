package httpx

import (
	"context"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ProbeCache memoizes availability-probe results for 30s, as required by
// §4.10 step 3 ("Probe results are cached 30 s in C13").
type ProbeCache struct {
	cache *gocache.Cache
}

func NewProbeCache() *ProbeCache {
	return &ProbeCache{cache: gocache.New(30*time.Second, time.Minute)}
}

// Probe issues a minimal POST to baseURL and reports whether the upstream
// answered with a status any provider would give for a well-formed-but-
// incomplete request (200/400/404/422), per §4.10 step 3. Results are
// cached per probed URL for 30s.
func (p *ProbeCache) Probe(ctx context.Context, pool *Pool, baseURL string, headers http.Header) bool {
	if v, ok := p.cache.Get(baseURL); ok {
		return v.(bool)
	}

	ok := p.doProbe(ctx, pool, baseURL, headers)
	p.cache.Set(baseURL, ok, gocache.DefaultExpiration)
	return ok
}

func (p *ProbeCache) doProbe(ctx context.Context, pool *Pool, baseURL string, headers http.Header) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, nil)
	if err != nil {
		return false
	}
	req.Header = headers

	resp, err := pool.Stream(ctx, req)
	if err != nil {
		return false
	}
	defer DrainBody(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}
