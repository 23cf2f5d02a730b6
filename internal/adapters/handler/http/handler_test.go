package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	brokermem "github.com/vncsmyrnk/tally/internal/adapters/broker/memory"
	"github.com/vncsmyrnk/tally/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
	"github.com/vncsmyrnk/tally/internal/core/services"
)

const testSecret = "test-secret"

type testEnv struct {
	handler   http.Handler
	store     *memory.Store
	broker    *brokermem.Broker
	statement uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	statement := uuid.New()
	store.AddStatement(statement)

	broker := brokermem.NewBroker(16, nil, nil)
	t.Cleanup(func() { broker.Close() })

	resolver, err := services.NewIdentityResolver("pepper")
	require.NoError(t, err)

	voteSvc := services.NewVoteService(store, resolver, store, store, broker, nil, nil)
	tallySvc := services.NewTallyService(store, store)
	gateway := services.NewGateway(broker, time.Hour, nil, nil)

	h := NewHandler(
		NewVoteHandler(voteSvc, nil),
		NewTallyHandler(tallySvc, nil),
		NewStreamHandler(gateway, store, 3*time.Second, nil),
		NewAuthenticator(testSecret),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		[]string{"*"},
		nil,
	)

	return &testEnv{handler: h, store: store, broker: broker, statement: statement}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func newVoteRequest(statement string, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/statements/"+statement+"/votes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVoteOnStatement(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(newVoteRequest(e.statement.String(), `{"value":"agree","region":"br"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out ports.VoteOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Nil(t, out.PreviousValue)
	assert.Equal(t, domain.ValueAgree, out.NewValue)
	require.NotNil(t, out.Tally)
	assert.Equal(t, int64(1), out.Tally.Total)

	assert.Contains(t, rec.Body.String(), `"previous_value":null`)
}

func TestVoteStatusMapping(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name      string
		statement string
		body      string
		want      int
	}{
		{"malformed id", "not-a-uuid", `{"value":"agree"}`, http.StatusBadRequest},
		{"malformed body", e.statement.String(), `{"value":`, http.StatusBadRequest},
		{"unsupported value", e.statement.String(), `{"value":"maybe"}`, http.StatusBadRequest},
		{"unknown statement", uuid.NewString(), `{"value":"agree"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(newVoteRequest(tt.statement, tt.body))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	n, err := e.store.CountVotes(context.Background(), e.statement)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVoteIdentity(t *testing.T) {
	e := newTestEnv(t)
	token := signedToken(t, testSecret, "user-1")

	// One principal from two networks is one voter.
	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := newVoteRequest(e.statement.String(), `{"value":"agree"}`)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Real-IP", ip)
		require.Equal(t, http.StatusOK, e.do(req).Code)
	}

	// The cookie carries the same principal.
	req := newVoteRequest(e.statement.String(), `{"value":"neutral"}`)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var out ports.VoteOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.PreviousValue)
	assert.Equal(t, domain.ValueAgree, *out.PreviousValue)

	// Anonymous callers on one network split by client signature.
	for _, sig := range []string{"P1", "P2", "P1"} {
		req := newVoteRequest(e.statement.String(), `{"value":"disagree"}`)
		req.Header.Set("X-Real-IP", "10.0.0.9")
		req.Header.Set(ClientSignatureHeader, sig)
		require.Equal(t, http.StatusOK, e.do(req).Code)
	}

	n, err := e.store.CountVotes(context.Background(), e.statement)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	e := newTestEnv(t)

	for _, token := range []string{"garbage", signedToken(t, "wrong-secret", "user-1")} {
		req := newVoteRequest(e.statement.String(), `{"value":"agree"}`)
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, e.do(req).Code)
	}
}

func TestEraseAnonymousHandler(t *testing.T) {
	e := newTestEnv(t)

	req := newVoteRequest(e.statement.String(), `{"value":"agree"}`)
	req.Header.Set(ClientSignatureHeader, "P1")
	require.Equal(t, http.StatusOK, e.do(req).Code)

	del := httptest.NewRequest(http.MethodDelete, "/api/votes/anonymous", nil)
	del.Header.Set(ClientSignatureHeader, "P1")
	rec := e.do(del)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"statements":1}`, rec.Body.String())
}

func TestGetTallyAndSeries(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.do(newVoteRequest(e.statement.String(), `{"value":"neutral"}`)).Code)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+e.statement.String()+"/tally", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var tally domain.Tally
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tally))
	assert.Equal(t, int64(1), tally.Total)
	assert.Len(t, tally.Counts, 3)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+e.statement.String()+"/series?window=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var buckets []domain.DailyBucket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(1), buckets[0].Total)

	empty := uuid.New()
	e.store.AddStatement(empty)
	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+empty.String()+"/series", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, q := range []string{"?window=0", "?window=-3", "?window=x", "?window=400"} {
		rec := e.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+e.statement.String()+"/series"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+uuid.NewString()+"/tally", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamRejectsUnknownStatement(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+uuid.NewString()+"/stream", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/statements/nope/stream", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(e.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/statements/%s/stream", server.URL, e.statement), nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	frames := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var lines []string
		for {
			line, err := frames.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return strings.Join(lines, "\n")
			}
			lines = append(lines, line)
		}
	}

	assert.Equal(t, "retry: 3000", readFrame())

	hello := readFrame()
	require.True(t, strings.HasPrefix(hello, "data: "), hello)
	var h domain.Hello
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(hello, "data: ")), &h))
	assert.Equal(t, domain.EventHello, h.Kind)
	assert.NotEmpty(t, h.Channel)

	vote := newVoteRequest(e.statement.String(), `{"value":"agree"}`)
	require.Equal(t, http.StatusOK, e.do(vote).Code)

	data := readFrame()
	var msg domain.FanoutMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &msg))
	assert.Equal(t, domain.EventVote, msg.Kind)
	assert.Equal(t, e.statement, msg.StatementID)
	assert.Equal(t, int64(1), msg.Counts[domain.ValueAgree])

	cancel()
	assert.Eventually(t, func() bool {
		return e.broker.Subscribers(domain.TopicFor(e.statement)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWriteJSONEncodeFailureKeepsStatus(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeJSON(rec, req, zap.New(core), http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "failed to encode response")
	require.Equal(t, 1, logs.FilterMessage("failed to encode response").Len())
}

func TestSSESinkFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := &sseSink{w: rec, rc: http.NewResponseController(rec)}

	require.NoError(t, sink.KeepAlive())
	require.NoError(t, sink.Fail(domain.StreamError{Kind: domain.EventError, Message: "subscription failed"}))

	assert.Equal(t,
		": keep-alive\n\n"+
			"event: error\ndata: {\"kind\":\"error\",\"message\":\"subscription failed\"}\n\n",
		rec.Body.String(),
	)
	assert.True(t, rec.Flushed)
}
