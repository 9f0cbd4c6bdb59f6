// Package httpapi implements the HTTP Surface (C8): routing, parameter
// parsing, health probe, informational endpoint, and error shaping. The
// route table and the panic-to-JSON middleware below follow the same shape
// as the teacher's HttpServe (a net/http mux serving /healthz, /status,
// and /metrics via promhttp.Handler), generalized from Stratum pool status
// reporting to the JSON-RPC proxy's GET/POST method surface, and using
// httprouter in place of the teacher's bare http.ServeMux because the
// route set now includes a ":method" path parameter.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carlosrabelo/atomicalsproxy/internal/coordinator"
	"github.com/carlosrabelo/atomicalsproxy/internal/metrics"
	"github.com/carlosrabelo/atomicalsproxy/internal/ratelimit"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
	"github.com/carlosrabelo/atomicalsproxy/pkg/logger"
	pkgmetrics "github.com/carlosrabelo/atomicalsproxy/pkg/metrics"
)

// HealthTimeout is the fixed deadline for the health probe (§5).
const HealthTimeout = 5 * time.Second

// Server wires the Coordinator to an httprouter.Router plus the ambient
// concerns the spec treats as external collaborators: rate limiting,
// a global concurrency cap, panic recovery, and CORS.
type Server struct {
	coord       *coordinator.Coordinator
	limiter     *ratelimit.Limiter
	snapshot    *metrics.Collector
	concurrency chan struct{}
	router      *httprouter.Router
}

// New builds a Server. concurrencyLimit <= 0 disables the cap.
func New(coord *coordinator.Coordinator, limiter *ratelimit.Limiter, snapshot *metrics.Collector, concurrencyLimit int) *Server {
	s := &Server{
		coord:    coord,
		limiter:  limiter,
		snapshot: snapshot,
	}
	if concurrencyLimit > 0 {
		s.concurrency = make(chan struct{}, concurrencyLimit)
	}

	r := httprouter.New()
	r.GET("/", s.handleBanner)
	r.GET("/proxy", s.handleInfo)
	r.POST("/proxy", s.handleInfo)
	// httprouter cannot register a static "/proxy/health" beside the
	// "/proxy/:method" wildcard, so the health probe is routed from here.
	call := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("method") == "health" {
			s.handleHealth(w, r, ps)
			return
		}
		s.handleCall(w, r, ps)
	}
	r.GET("/proxy/:method", call)
	r.POST("/proxy/:method", call)
	r.GET("/metrics", wrapStd(promhttp.Handler()))
	r.NotFound = http.HandlerFunc(s.handleNotFound)
	s.router = r
	return s
}

func wrapStd(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// Handler returns the assembled handler with the request tally outermost,
// then CORS, panic recovery, concurrency limiting, and rate limiting
// innermost, wrapping the router.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.withRateLimit(h)
	h = s.withConcurrencyLimit(h)
	h = s.withRecover(h)
	h = s.withCORS(h)
	h = s.withTally(h)
	return h
}

// withTally keeps the lightweight request/error counters separate from the
// Prometheus collectors registered in internal/metrics: this is the cheap,
// always-on tally a health check or CLI status print can read without
// scraping /metrics.
func (s *Server) withTally(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pkgmetrics.IncrementRequests()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			pkgmetrics.IncrementErrors()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				writeEnvelope(w, http.StatusInternalServerError, rpctypes.LocalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withConcurrencyLimit(next http.Handler) http.Handler {
	if s.concurrency == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.concurrency <- struct{}{}:
			defer func() { <-s.concurrency }()
			next.ServeHTTP(w, r)
		default:
			writeEnvelope(w, http.StatusServiceUnavailable, rpctypes.LocalError("concurrency limit exceeded"))
		}
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ratelimit.ExtractIP(r)
		if !s.limiter.Allow(ip) {
			writeEnvelope(w, http.StatusTooManyRequests, rpctypes.LocalError("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Hello, Atomicals!")
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	info := map[string]interface{}{
		"name": "atomicalsproxy",
		"usageInfo": map[string]string{
			"get":  "GET /proxy/:method?params=[...json array...]",
			"post": `POST /proxy/:method with body {"params":[...]}`,
		},
		"pool": map[string]interface{}{
			"connected": s.coord.ConnectedUpstreams(),
		},
		"metrics": s.snapshot.Snapshot(),
		"cache":   s.coord.CacheStats(),
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthTimeout)
	defer cancel()

	env := s.coord.Call(ctx, rpctypes.TipMethod, []interface{}{}, ratelimit.ExtractIP(r), HealthTimeout)
	healthy := env.Success && len(env.Response) > 0
	writeEnvelope(w, http.StatusOK, rpctypes.Health(healthy))
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	method := ps.ByName("method")

	params, ok := parseParams(r)
	if !ok {
		writeEnvelope(w, http.StatusInternalServerError, rpctypes.LocalError("params must be a JSON array"))
		return
	}

	env := s.coord.Call(r.Context(), method, params, ratelimit.ExtractIP(r), s.coord.ResponseTimeout())
	writeEnvelope(w, http.StatusOK, env)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusNotFound, rpctypes.LocalError("No route: "+r.URL.RequestURI()))
}

// parseParams extracts the params array per method and request shape
// (§4.8). Returns ok=false when the query value or the POST body is present
// but is not valid JSON, or when a params value is present but does not
// decode to a JSON array.
func parseParams(r *http.Request) ([]interface{}, bool) {
	if r.Method == http.MethodGet {
		raw := r.URL.Query().Get("params")
		if raw == "" {
			return []interface{}{}, true
		}
		var params []interface{}
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, false
		}
		return params, true
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return []interface{}{}, true
	}
	var payload struct {
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	if len(payload.Params) == 0 {
		return []interface{}{}, true
	}
	var params []interface{}
	if err := json.Unmarshal(payload.Params, &params); err != nil {
		return nil, false
	}
	return params, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, env rpctypes.Envelope) {
	writeJSON(w, status, env)
}
