package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carlosrabelo/atomicalsproxy/internal/cache"
	"github.com/carlosrabelo/atomicalsproxy/internal/coordinator"
	"github.com/carlosrabelo/atomicalsproxy/internal/idalloc"
	"github.com/carlosrabelo/atomicalsproxy/internal/metrics"
	"github.com/carlosrabelo/atomicalsproxy/internal/pending"
	"github.com/carlosrabelo/atomicalsproxy/internal/pool"
	"github.com/carlosrabelo/atomicalsproxy/internal/ratelimit"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
)

type fakeDispatcher struct{}

func (fakeDispatcher) Dispatch(id uint32, req rpctypes.Request, sink pending.Sink) error {
	sink <- &rpctypes.Response{ID: id, Result: json.RawMessage(`"ok"`)}
	return nil
}
func (fakeDispatcher) RemovePending(uint32) {}

type fakePicker struct{}

func (fakePicker) Pick() pool.Dispatcher { return fakeDispatcher{} }
func (fakePicker) ConnectedCount() int   { return 2 }

func newTestServer() *Server {
	coord := coordinator.New(fakePicker{}, idalloc.New(), cache.New(time.Minute, time.Minute, 100), time.Second, nil)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: false})
	return New(coord, limiter, metrics.NewCollector(), 0)
}

func TestHandleBannerReturnsGreeting(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Body.String() != "Hello, Atomicals!" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}

func TestHandleCallReturnsUpstreamResult(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy/blockchain.block.header", nil))

	var env rpctypes.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !env.Success || string(env.Response) != `"ok"` {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestHandleCallGetParsesParamsQueryParam(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, `/proxy/foo?params=[1,"a"]`, nil)
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleCallGetRejectsNonArrayParams(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, `/proxy/foo?params={"not":"array"}`, nil)
	s.Handler().ServeHTTP(w, req)

	var env rpctypes.Envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Success || env.Code == nil || *env.Code != -1 {
		t.Fatalf("expected local error envelope for malformed params, got %+v", env)
	}
}

func TestHandleCallPostParsesBodyParams(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"params":[1,2,3]}`)
	req := httptest.NewRequest(http.MethodPost, "/proxy/foo", body)
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleHealthReturnsHealthyEnvelope(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy/health", nil))

	var env rpctypes.Envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Health == nil || !*env.Health {
		t.Fatalf("expected healthy envelope, got %+v", env)
	}
}

func TestHandleInfoIncludesPoolAndMetrics(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy", nil))

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	poolInfo, ok := body["pool"].(map[string]interface{})
	if !ok || poolInfo["connected"] != float64(2) {
		t.Fatalf("expected pool.connected=2, got %+v", body["pool"])
	}
	if _, ok := body["metrics"].(map[string]interface{}); !ok {
		t.Fatalf("expected a metrics object, got %+v", body["metrics"])
	}
}

func TestNotFoundRouteReturnsEnvelope(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var env rpctypes.Envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Success {
		t.Fatalf("expected failure envelope, got %+v", env)
	}
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	coord := coordinator.New(fakePicker{}, idalloc.New(), cache.New(time.Minute, time.Minute, 100), time.Second, nil)
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, Period: time.Minute, Burst: 1})
	s := New(coord, limiter, metrics.NewCollector(), 0)

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/proxy/foo", nil)
		r.RemoteAddr = "203.0.113.1:5555"
		return r
	}

	w1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w1, req())
	if w1.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, req())
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", w2.Code)
	}
}
