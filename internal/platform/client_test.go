package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/alphaloop/internal/retry"
	"github.com/sawpanic/alphaloop/internal/secrets"
)

const authBody = `{"user":{"id":"AB1234"},"token":{"expiry":14400.0}}`

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RPS = 0
	cfg.Poll = retry.Policy{MaxElapsed: 5 * time.Second, InitialInterval: time.Millisecond, Constant: true}

	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestLogin_ReusesValidToken(t *testing.T) {
	var posts int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authentication", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(TokenCookie)
		if err != nil || ck.Value != "stored" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(authBody))
	})
	mux.HandleFunc("POST /authentication", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
	})

	c := newTestClient(t, mux)
	c.SetToken("stored")

	s, err := c.Login(context.Background(), secrets.Credentials{Email: "q@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "AB1234", s.UserID)
	assert.Equal(t, 4*time.Hour, s.TTL)
	assert.Equal(t, "stored", s.Token)
	assert.Zero(t, atomic.LoadInt32(&posts))
}

func TestLogin_BasicAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /authentication", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "q@example.com" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: "fresh", Path: "/"})
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(authBody))
	})

	c := newTestClient(t, mux)
	s, err := c.Login(context.Background(), secrets.Credentials{Email: "q@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.Token)
	assert.Equal(t, "fresh", c.Token())

	_, err = newTestClient(t, mux).Login(context.Background(), secrets.Credentials{Email: "q@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_Persona(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /authentication", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", "persona")
		w.Header().Set("Location", "/authentication/persona?inquiry=inq_1")
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /authentication/persona", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inq_1", r.URL.Query().Get("inquiry"))
		http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: "bio", Path: "/"})
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(authBody))
	})

	c := newTestClient(t, mux)
	_, err := c.Login(context.Background(), secrets.Credentials{Email: "q@example.com", Password: "pw"})

	var persona *PersonaRequiredError
	require.True(t, errors.As(err, &persona))
	assert.Contains(t, persona.URL, "/authentication/persona?inquiry=inq_1")

	s, err := c.CompletePersona(context.Background(), persona.URL)
	require.NoError(t, err)
	assert.Equal(t, "bio", s.Token)
}

func TestSimulate_PollsUntilAlpha(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /simulations", func(w http.ResponseWriter, r *http.Request) {
		var p SimulationPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "REGULAR", p.Type)
		assert.Equal(t, "rank(close)", p.Regular)
		assert.Equal(t, "USA", p.Settings.Region)
		w.Header().Set("Location", "/simulations/sim1")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /simulations/sim1", func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			w.Header().Set("Retry-After", "0.01")
			w.Write([]byte(`{"progress":0.5}`))
		case 2:
			w.Header().Set("Retry-After", "0.01")
			w.Write([]byte(`not json yet`))
		default:
			w.Write([]byte(`{"status":"COMPLETE","alpha":"kqXbr2E"}`))
		}
	})

	var mu sync.Mutex
	var events []Progress
	c := newTestClient(t, mux, WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	}))

	id, err := c.Simulate(context.Background(), NewSimulation(DefaultSettings(), "rank(close)"))
	require.NoError(t, err)
	assert.Equal(t, "kqXbr2E", id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))

	require.Len(t, events, 2)
	assert.Equal(t, 0.5, events[0].Fraction)
	assert.Equal(t, "kqXbr2E", events[1].AlphaID)
}

func TestSimulate_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /simulations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/simulations/bad")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /simulations/bad", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ERROR","message":"Unexpected character ')'"}`))
	})

	_, err := newTestClient(t, mux).Simulate(context.Background(), NewSimulation(DefaultSettings(), "rank(close))"))
	var simErr *SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.Equal(t, "ERROR", simErr.Status)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
}

func TestResultAndPnL(t *testing.T) {
	doc, err := os.ReadFile("../alpha/testdata/result_usa.json")
	require.NoError(t, err)

	var resultPolls int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /alphas/kqXbr2E", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&resultPolls, 1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			return
		}
		w.Write(doc)
	})
	mux.HandleFunc("GET /alphas/kqXbr2E/recordsets/pnl", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schema":{"name":"pnl"},"records":[["2020-01-02",10.5],["2020-01-03",null],["2020-01-06",12.0]]}`))
	})
	mux.HandleFunc("GET /alphas/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Not found."}`, http.StatusNotFound)
	})

	c := newTestClient(t, mux)

	r, raw, err := c.Result(context.Background(), "kqXbr2E")
	require.NoError(t, err)
	assert.Equal(t, "kqXbr2E", r.ID)
	assert.Equal(t, 1.42, r.InSample.Sharpe)
	assert.JSONEq(t, string(doc), string(raw))
	assert.Equal(t, int32(2), atomic.LoadInt32(&resultPolls))

	points, err := c.PnL(context.Background(), "kqXbr2E")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 10.5, points[1].Value)
	assert.Equal(t, 12.0, points[2].Value)

	_, _, err = c.Result(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
}

func TestDataFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data-fields/assets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"assets","description":"Assets - Total","type":"MATRIX","alphaCount":5120}`))
	})
	mux.HandleFunc("GET /data-fields", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GROUP", r.URL.Query().Get("type"))
		assert.Equal(t, "1", r.URL.Query().Get("delay"))
		w.Write([]byte(`{"count":2,"results":[{"id":"sector","type":"GROUP","alphaCount":90},{"id":"industry","type":"GROUP","alphaCount":70}]}`))
	})

	c := newTestClient(t, mux)

	f, err := c.DataField(context.Background(), "assets")
	require.NoError(t, err)
	assert.Equal(t, DataField{ID: "assets", Description: "Assets - Total", Type: "MATRIX", AlphaCount: 5120}, f)

	groups, err := c.SearchDataFields(context.Background(), DataFieldQuery{Region: "USA", Delay: 1, Type: "GROUP"})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "sector", groups[0].ID)
}

func TestListAlphas_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/self/alphas", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "UNSUBMITTED", q.Get("status!"))
		if q.Get("offset") == "0" {
			w.Write([]byte(`{"results":[{"id":"a1"},{"id":"a2"}],"next":"page2"}`))
			return
		}
		w.Write([]byte(`{"results":[{"id":"a3"}],"next":null}`))
	})

	alphas, err := newTestClient(t, mux).ListAlphas(context.Background(), AlphaQuery{Submitted: true, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, alphas, 3)
}

func TestAPIError_RedactsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data-fields/private", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"access denied for quant@example.com"}`, http.StatusForbidden)
	})

	c := newTestClient(t, mux)

	_, err := c.DataField(context.Background(), "private")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
	assert.NotContains(t, apiErr.Body, "quant@example.com")
	assert.Contains(t, apiErr.Body, "[REDACTED]")
}
