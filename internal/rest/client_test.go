package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server, *Latch) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	latch := NewLatch()
	client := NewClient(schema.VenueBinance, latch,
		WithHTTPClient(srv.Client()),
		WithRateLimit(rate.NewLimiter(rate.Inf, 1)),
	)
	return client, srv, latch
}

func TestDoDecodesJSON(t *testing.T) {
	client, srv, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("missing query param, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected user agent header")
		}
		_, _ = w.Write([]byte(`{"serverTime": 1700000000000}`))
	})

	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	query := url.Values{}
	query.Set("symbol", "BTCUSDT")
	err := client.Do(context.Background(), Request{
		Method: http.MethodGet, Base: srv.URL, Path: "/api/v3/time", Query: query,
	}, &out)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.ServerTime != 1700000000000 {
		t.Fatalf("serverTime = %d", out.ServerTime)
	}
}

func TestDo429TripsLatchAndClassifies(t *testing.T) {
	client, srv, latch := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Base: srv.URL, Path: "/x"}, nil)
	if !errs.HasCode(err, errs.CodeRateLimited) {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if !latch.Active() {
		t.Fatalf("latch should be tripped after 429")
	}

	// While latched, calls fail fast without reaching upstream.
	err = client.Do(context.Background(), Request{Method: http.MethodGet, Base: srv.URL, Path: "/x"}, nil)
	if !errs.HasCode(err, errs.CodeRateLimited) {
		t.Fatalf("expected fail-fast rate_limited, got %v", err)
	}
}

func TestDoClassifies4xxAnd5xx(t *testing.T) {
	status := http.StatusBadRequest
	client, srv, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Base: srv.URL, Path: "/x"}, nil)
	if !errs.HasCode(err, errs.CodeHTTP) {
		t.Fatalf("expected http code for 400, got %v", err)
	}

	status = http.StatusInternalServerError
	err = client.Do(context.Background(), Request{Method: http.MethodGet, Base: srv.URL, Path: "/x"}, nil)
	if !errs.HasCode(err, errs.CodeOther) {
		t.Fatalf("expected other code for 500, got %v", err)
	}
}

func TestSignHookRuns(t *testing.T) {
	var sawSignature string
	srvHandler := func(w http.ResponseWriter, r *http.Request) {
		sawSignature = r.URL.Query().Get("signature")
		_, _ = w.Write([]byte(`{}`))
	}
	srv := httptest.NewServer(http.HandlerFunc(srvHandler))
	defer srv.Close()

	client := NewClient(schema.VenueBinance, NewLatch(),
		WithHTTPClient(srv.Client()),
		WithSignFunc(func(_ context.Context, req *Request) error {
			req.Query.Set("signature", "sig")
			return nil
		}),
	)
	query := url.Values{}
	err := client.Do(context.Background(), Request{
		Method: http.MethodGet, Base: srv.URL, Path: "/x", Query: query, Signed: true,
	}, nil)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if sawSignature != "sig" {
		t.Fatalf("sign hook did not run, signature = %q", sawSignature)
	}
}

func TestLatchResetHonoursMinimumHold(t *testing.T) {
	now := time.Unix(1700000000, 0)
	latch := NewLatchWithClock(func() time.Time { return now })
	latch.Trip()

	now = now.Add(10 * time.Second)
	if latch.Reset() {
		t.Fatalf("reset must fail before %s elapsed", ResetAfter)
	}
	if !latch.Active() {
		t.Fatalf("latch must stay active after failed reset")
	}

	now = now.Add(21 * time.Second)
	if !latch.Reset() {
		t.Fatalf("reset should succeed after hold window")
	}
	if latch.Active() {
		t.Fatalf("latch should be clear after reset")
	}
	if !latch.Reset() {
		t.Fatalf("reset on a clear latch reports success")
	}
}
