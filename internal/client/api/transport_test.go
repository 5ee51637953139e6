package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/common"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

func seedStore(t *testing.T, values map[string]string) credentials.Store {
	t.Helper()
	s := credentials.NewMemoryStore()
	for k, v := range values {
		require.NoError(t, s.Set(context.Background(), k, v))
	}
	return s
}

func newTransportClient(store credentials.Store, refreshURL string) (*AuthTransport, *http.Client) {
	tr := NewAuthTransport(nil, store, refreshURL, nil, nil)
	return tr, &http.Client{Transport: tr}
}

func TestAuthTransport_AttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := seedStore(t, map[string]string{common.SlotAccessToken: "A1"})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	resp, err := client.Get(srv.URL + "/anything")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer A1", gotAuth)
	assert.NotEmpty(t, gotReqID)
}

func TestAuthTransport_NoToken_SendsUnauthenticated(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, client := newTransportClient(credentials.NewMemoryStore(), srv.URL+pathRefresh)

	resp, err := client.Get(srv.URL + "/public")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotAuth, "absence of a token is not an error at this layer")
}

// refreshingBackend is an httptest handler pair: a protected resource that
// only accepts the rotated token, and a refresh endpoint that issues it.
type refreshingBackend struct {
	acceptToken  string
	newAccess    string
	refreshCalls atomic.Int64
	wantRefresh  string
}

func (b *refreshingBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pathRefresh, func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		var body struct {
			Refresh string `json:"refresh"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if b.wantRefresh != "" && body.Refresh != b.wantRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access":%q}`, b.newAccess)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.acceptToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})
	return mux
}

func TestAuthTransport_Refresh_RetriesWithNewToken(t *testing.T) {
	backend := &refreshingBackend{acceptToken: "A2", newAccess: "A2", wantRefresh: "R1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "R1",
	})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	resp, err := client.Get(srv.URL + "/protected")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// the caller never observes the intermediate 401
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int64(1), backend.refreshCalls.Load())

	stored, err := store.Get(context.Background(), common.SlotAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A2", stored)
}

func TestAuthTransport_Refresh_ReplaysRequestBody(t *testing.T) {
	var bodies []string
	mux := http.NewServeMux()
	mux.HandleFunc(pathRefresh, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access":"A2"}`)
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "R1",
	})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	resp, err := client.Post(srv.URL+"/submit", "application/json", strings.NewReader(`{"v":1}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, bodies, 2)
	assert.Equal(t, `{"v":1}`, bodies[0])
	assert.Equal(t, `{"v":1}`, bodies[1], "retry must carry the original body")
}

func TestAuthTransport_NoRefreshToken_TerminalWithoutRefreshCall(t *testing.T) {
	backend := &refreshingBackend{acceptToken: "A2", newAccess: "A2"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken: "A0",
		common.SlotUser:        `{"email":"a@b.com"}`,
	})
	tr, client := newTransportClient(store, srv.URL+pathRefresh)

	var invalidatedWith error
	tr.OnSessionInvalidated(func(cause error) { invalidatedWith = cause })

	resp, err := client.Get(srv.URL + "/protected") //nolint:bodyclose
	require.Error(t, err)
	require.Nil(t, resp)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.ErrorIs(t, err, common.ErrNoRefreshToken)
	assert.ErrorIs(t, invalidatedWith, common.ErrNoRefreshToken)

	// no refresh attempt was made
	assert.Equal(t, int64(0), backend.refreshCalls.Load())

	// all session slots cleared
	for _, slot := range common.AuthSlots {
		v, gerr := store.Get(context.Background(), slot)
		require.NoError(t, gerr)
		assert.Empty(t, v, "slot %s must be cleared", slot)
	}
}

func TestAuthTransport_RefreshRejected_PropagatesRefreshFailureNotThe401(t *testing.T) {
	backend := &refreshingBackend{acceptToken: "A2", newAccess: "A2", wantRefresh: "GOOD"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "STALE",
	})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	_, err := client.Get(srv.URL + "/protected") //nolint:bodyclose
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Contains(t, err.Error(), "refresh rejected with status 401")
}

func TestAuthTransport_RefreshResponseWithoutAccess_Terminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathRefresh, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "R1",
	})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	_, err := client.Get(srv.URL + "/protected") //nolint:bodyclose
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.ErrorIs(t, err, common.ErrNoAccessInResponse)
}

func TestAuthTransport_SessionClearedDuringRefresh_TokenNotWrittenBack(t *testing.T) {
	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "R1",
		common.SlotUser:         `{"email":"a@b.com"}`,
	})

	mux := http.NewServeMux()
	mux.HandleFunc(pathRefresh, func(w http.ResponseWriter, r *http.Request) {
		// logout wins the race: the store is cleared before the refresh
		// response reaches the client
		require.NoError(t, store.Remove(r.Context(), common.AuthSlots...))
		fmt.Fprint(w, `{"access":"A2"}`)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, client := newTransportClient(store, srv.URL+pathRefresh)

	_, err := client.Get(srv.URL + "/protected") //nolint:bodyclose
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.ErrorIs(t, err, common.ErrNoRefreshToken)

	access, gerr := store.Get(context.Background(), common.SlotAccessToken)
	require.NoError(t, gerr)
	assert.Empty(t, access, "a refresh finishing after logout must not restore the session")
}

func TestAuthTransport_SecondUnauthorized_PassedThrough(t *testing.T) {
	backend := &refreshingBackend{acceptToken: "NEVER", newAccess: "A2", wantRefresh: "R1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "R1",
	})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	resp, err := client.Get(srv.URL + "/protected")
	require.NoError(t, err)
	resp.Body.Close()

	// at most one refresh cycle per original request
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(1), backend.refreshCalls.Load())
}

func TestAuthTransport_OtherErrorStatuses_PassThroughUnmodified(t *testing.T) {
	backend := &refreshingBackend{acceptToken: "A1", newAccess: "A2"}
	mux := http.NewServeMux()
	mux.Handle("/", backend.handler())
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := seedStore(t, map[string]string{common.SlotAccessToken: "A1"})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	resp, err := client.Get(srv.URL + "/teapot")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, int64(0), backend.refreshCalls.Load())
}

func TestAuthTransport_ConcurrentUnauthorized_SingleRefresh(t *testing.T) {
	const n = 5

	ready := make(chan struct{})
	var refreshCalls, unauthorized atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc(pathRefresh, func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-ready // hold the refresh open so all 401s pile up behind it
		fmt.Fprint(w, `{"access":"A2"}`)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			unauthorized.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := seedStore(t, map[string]string{
		common.SlotAccessToken:  "A0",
		common.SlotRefreshToken: "R1",
	})
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/protected")
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}

	// The refresh is held open, so the stored token stays stale and every
	// request is guaranteed to hit its 401 before any refresh completes.
	require.Eventually(t, func() bool { return unauthorized.Load() == n }, testWait, testTick)
	close(ready)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.Equal(t, int64(1), refreshCalls.Load(),
		"concurrent 401s must share one in-flight refresh")
}

func TestAuthTransport_InvalidationHandlerPanic_DoesNotMaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := seedStore(t, map[string]string{common.SlotAccessToken: "A0"})
	tr, client := newTransportClient(store, srv.URL+pathRefresh)
	tr.OnSessionInvalidated(func(error) { panic("subscriber bug") })

	_, err := client.Get(srv.URL + "/protected") //nolint:bodyclose
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

// faultyStore fails selected operations; everything else delegates.
type faultyStore struct {
	credentials.Store
	getErr map[string]error
}

func (s *faultyStore) Get(ctx context.Context, key string) (string, error) {
	if err, ok := s.getErr[key]; ok {
		return "", err
	}
	return s.Store.Get(ctx, key)
}

func TestAuthTransport_StoreReadFailure_DegradesToNoToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &faultyStore{
		Store:  credentials.NewMemoryStore(),
		getErr: map[string]error{common.SlotAccessToken: errors.New("disk gone")},
	}
	_, client := newTransportClient(store, srv.URL+pathRefresh)

	resp, err := client.Get(srv.URL + "/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, gotAuth)
}
