package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation/conversationtest"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
	"github.com/Realm-101/unbuilt-advisor/internal/engine/enginetest"
	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
	"github.com/Realm-101/unbuilt-advisor/internal/security/securitytest"
)

const testAnswer = "Interview ten meal kit operators about compostable insulation costs first."

type testServer struct {
	gw      *Gateway
	handler http.Handler
	store   *conversation.InMemoryMessageStore
	cache   *cache.MemoryCache
	dedup   *dedup.Service
	events  *securitytest.Recorder
	metrics *metrics.Metrics
}

// newTestServer wires real services around in-memory stores. tweak may
// adjust config and deps before the gateway is built.
func newTestServer(t *testing.T, tweak func(*Config, *Deps)) *testServer {
	t.Helper()

	ts := &testServer{
		store:   conversation.NewInMemoryMessageStore(),
		cache:   cache.NewMemoryCache(cache.MemoryConfig{}),
		events:  &securitytest.Recorder{},
		metrics: metrics.New(nil),
	}
	ts.dedup = dedup.NewService(dedup.Config{}, ts.cache, nil)

	est := ctxengine.NewCharEstimator(4)
	opt := ctxengine.NewContextOptimizer(est, ts.cache, ctxengine.ContextConfig{}, nil)
	input, err := security.NewInputValidator(security.InputValidatorConfig{}, ts.events)
	if err != nil {
		t.Fatal(err)
	}

	deps := Deps{
		Context:   ctxengine.NewManager(est, opt, ctxengine.ContextConfig{}, nil),
		Analyses:  conversation.NewInMemoryAnalysisProvider(conversationtest.Analysis()),
		Store:     ts.store,
		Input:     input,
		Quality:   quality.NewValidator(quality.Config{}),
		Dedup:     ts.dedup,
		Limiter:   security.NewConversationRateLimiter(security.RateLimitConfig{}),
		Questions: questions.NewGenerator(questions.Config{}),
		Cache:     ts.cache,
		Events:    ts.events,
		Metrics:   ts.metrics,
	}
	eng, err := engine.New(engine.Config{}, engine.Deps{
		Store:     deps.Store,
		Analyses:  deps.Analyses,
		Completer: &enginetest.MockCompleter{Response: testAnswer},
		Context:   deps.Context,
		Input:     deps.Input,
		Limiter:   deps.Limiter,
		Quality:   deps.Quality,
		Dedup:     deps.Dedup,
		Questions: deps.Questions,
		Events:    deps.Events,
		Metrics:   deps.Metrics,
	})
	if err != nil {
		t.Fatal(err)
	}
	deps.Engine = eng

	cfg := Config{}
	if tweak != nil {
		tweak(&cfg, &deps)
	}
	gw, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts.gw = gw
	ts.handler = gw.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) seed(t *testing.T, msgs []conversation.Message) {
	t.Helper()
	for _, m := range msgs {
		if _, err := ts.store.Append(context.Background(), m); err != nil {
			t.Fatal(err)
		}
	}
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }
