package target

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_ErrorKind(t *testing.T) {
	assert.Equal(t, "", OK().ErrorKind())
	assert.Equal(t, "timeout", Fail("", context.DeadlineExceeded).ErrorKind())
	assert.Equal(t, "canceled", Fail("", context.Canceled).ErrorKind())
	assert.Equal(t, "http_500", Result{Status: "http_500"}.ErrorKind())
	assert.Equal(t, "error", Fail("", errors.New("boom")).ErrorKind())
	assert.Equal(t, "unsupported", unsupported(Noop{}).ErrorKind())
}

func TestFunc_Execute(t *testing.T) {
	var got Operation
	f := Func(func(_ context.Context, op Operation) Result {
		got = op
		return OK()
	})
	res := f.Execute(context.Background(), CacheGet{Key: "a"})

	assert.True(t, res.Success)
	assert.Equal(t, KindCacheGet, got.Kind())
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(2)
	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	_, _ = c.Get("a")
	c.Set("c", []byte("3"), 0)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB, "least recently used key is evicted")
	assert.True(t, okC)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRatio(), 1e-9)
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", []byte("v"), time.Second)

	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_Execute(t *testing.T) {
	c := NewMemoryCache(10)
	ctx := context.Background()

	res := c.Execute(ctx, CacheGet{Key: "x"})
	assert.True(t, res.Success)
	assert.False(t, res.Hit)

	c.Execute(ctx, CacheSet{Key: "x", Value: []byte("hello")})
	res = c.Execute(ctx, CacheGet{Key: "x"})
	assert.True(t, res.Hit)
	assert.Equal(t, int64(5), res.Bytes)

	c.Execute(ctx, CacheDelete{Key: "x"})
	assert.False(t, c.Execute(ctx, CacheGet{Key: "x"}).Hit)

	assert.False(t, c.Execute(ctx, DBQuery{SQL: "SELECT 1"}).Success)
}

func TestHTTPTarget_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":1}]}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	tgt, err := NewHTTPTarget(HTTPConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer tgt.Close()
	ctx := context.Background()

	res := tgt.Execute(ctx, HTTPRequest{Path: "/users", JSONPath: "$.data[0].id"})
	assert.True(t, res.Success)
	assert.Positive(t, res.Bytes)

	res = tgt.Execute(ctx, HTTPRequest{Path: "users", JSONPath: "$.data[5].id"})
	assert.False(t, res.Success)
	assert.Equal(t, "assertion", res.ErrorKind())

	res = tgt.Execute(ctx, HTTPRequest{Path: "/missing"})
	assert.False(t, res.Success)
	assert.Equal(t, "http_404", res.ErrorKind())

	res = tgt.Execute(ctx, HTTPRequest{Method: "POST", Path: "/anything", ExpectStatus: http.StatusNoContent})
	assert.True(t, res.Success)

	assert.False(t, tgt.Execute(ctx, Noop{}).Success)
}

func TestHTTPTarget_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPTarget(HTTPConfig{})
	assert.Error(t, err)
}

func TestSQLTarget_Execute(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tgt := NewSQLTarget(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id FROM items").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).AddRow(8))
	res := tgt.Execute(ctx, DBQuery{SQL: "SELECT id FROM items WHERE id >= $1", Args: []any{int64(7)}})
	assert.True(t, res.Success)
	assert.Equal(t, int64(2), res.Bytes)

	mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 1))
	res = tgt.Execute(ctx, DBQuery{SQL: "UPDATE items SET n = n + 1", Write: true})
	assert.True(t, res.Success)

	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error"))
	res = tgt.Execute(ctx, DBQuery{SQL: "SELECT broken"})
	assert.False(t, res.Success)
	assert.Equal(t, "query", res.ErrorKind())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulatedDB_ReadWrite(t *testing.T) {
	db := NewSimulatedDB(0, 0)
	ctx := context.Background()

	res := db.Execute(ctx, DBQuery{Args: []any{1}})
	assert.True(t, res.Success)
	assert.Zero(t, res.Bytes)

	db.Execute(ctx, DBQuery{Args: []any{1}, Write: true})
	res = db.Execute(ctx, DBQuery{Args: []any{1}})
	assert.Equal(t, int64(1), res.Bytes)
	assert.Equal(t, 1, db.Rows())
}

func TestSimulatedDB_Timeout(t *testing.T) {
	db := NewSimulatedDB(time.Second, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	res := db.Execute(ctx, DBQuery{})
	assert.False(t, res.Success)
	assert.Equal(t, "timeout", res.ErrorKind())
}

func TestAllocator_RetainAndRelease(t *testing.T) {
	a := NewAllocator(2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := a.Execute(ctx, Allocate{Bytes: 1024, Retain: true})
		require.True(t, res.Success)
	}
	a.Execute(ctx, Allocate{Bytes: 1024})

	assert.Equal(t, int64(4096), a.Allocated())
	assert.Equal(t, int64(2048), a.Retained())

	a.Release()
	assert.Zero(t, a.Retained())
}

func TestWithLatency(t *testing.T) {
	tgt := WithLatency(Func(func(context.Context, Operation) Result { return OK() }),
		LatencyProfile{Base: 5 * time.Millisecond})

	start := time.Now()
	res := tgt.Execute(context.Background(), Noop{})
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	failing := WithLatency(Func(func(context.Context, Operation) Result { return OK() }),
		LatencyProfile{ErrorRate: 1})
	assert.Equal(t, "injected", failing.Execute(context.Background(), Noop{}).ErrorKind())
}

func TestSimulatedServiceQueuesBeyondConcurrency(t *testing.T) {
	svc := NewSimulatedService(ServiceProfile{Base: 30 * time.Millisecond, Concurrency: 1, QueueTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Execute(ctx, Noop{})
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Err, ErrOverloaded)
	assert.Equal(t, "overloaded", results[1].ErrorKind())
	assert.Equal(t, 0, svc.InFlight())
}

func TestSimulatedServiceUnlimited(t *testing.T) {
	svc := NewSimulatedService(ServiceProfile{})
	res := svc.Execute(context.Background(), HTTPRequest{Body: []byte("abc")})
	assert.True(t, res.Success)
	assert.Equal(t, int64(3), res.Bytes)
}

func TestSQLDriversRegistered(t *testing.T) {
	registered := sql.Drivers()
	for _, d := range SQLDrivers {
		assert.Contains(t, registered, d)
	}
}
