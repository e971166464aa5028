package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := &jwt.StandardClaims{Subject: "acct1", ExpiresAt: exp.Unix(), IssuedAt: time.Now().Unix()}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return ss
}

func tokenValid(ss string) bool {
	claims := new(jwt.StandardClaims)
	_, err := jwt.ParseWithClaims(ss, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	return err == nil && time.Now().Before(time.Unix(claims.ExpiresAt, 0))
}

func write401(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": code})
}

// The core renewal pipeline: N requests hit an expired token, exactly
// one refresh runs, and the requests are replayed in the order they
// were first submitted.
func TestExpiredTokenSingleRenewalOrderedReplay(t *testing.T) {
	const n = 5

	var (
		mu           sync.Mutex
		refreshCount int32
		firstPass401 int32
		served       []string
		releaseRenew = make(chan struct{})
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")[len("Bearer "):]

		if r.URL.Path == "/api/users/refresh" {
			<-releaseRenew
			atomic.AddInt32(&refreshCount, 1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"token": testToken(t, time.Now().Add(5*time.Hour)),
			})
			return
		}

		if !tokenValid(token) {
			atomic.AddInt32(&firstPass401, 1)
			write401(w, codeTokenExpired)
			return
		}
		mu.Lock()
		served = append(served, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken(testToken(t, time.Now().Add(-time.Minute)))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/item/"+strconv.Itoa(i), nil)
			require.NoError(t, err)
			res, err := c.Do(req)
			if err == nil {
				res.Body.Close()
			}
			errs[i] = err
		}(i)
		// stagger the launches so the queue order is the submission order
		time.Sleep(20 * time.Millisecond)
	}

	// hold the renewal until every request has taken its first-pass 401
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&firstPass401) >= n
	}, 2*time.Second, 5*time.Millisecond)
	// let the last 401 responses land in the queue before releasing
	time.Sleep(100 * time.Millisecond)
	close(releaseRenew)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCount), "expected exactly one renewal")

	want := make([]string, n)
	for i := range want {
		want[i] = "/api/item/" + strconv.Itoa(i)
	}
	assert.Equal(t, want, served, "replay should preserve submission order")
}

func TestRenewalFailureRejectsQueueAndClearsSession(t *testing.T) {
	const n = 3

	var firstPass401 int32
	releaseRenew := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/users/refresh" {
			<-releaseRenew
			write401(w, "INVALID_TOKEN")
			return
		}
		atomic.AddInt32(&firstPass401, 1)
		write401(w, codeTokenExpired)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken(testToken(t, time.Now().Add(-time.Minute)))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/item/%d", srv.URL, i), nil)
			require.NoError(t, err)
			_, errs[i] = c.Do(req)
		}(i)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&firstPass401) >= n
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(releaseRenew)
	wg.Wait()

	for i, err := range errs {
		assert.Equal(t, ErrSessionExpired, err, "request %d", i)
	}
	assert.Empty(t, c.Token(), "session should be cleared")
}

func TestOtherUnauthorizedClearsSessionImmediately(t *testing.T) {
	var refreshCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/users/refresh" {
			atomic.AddInt32(&refreshCalls, 1)
			return
		}
		write401(w, "INVALID_TOKEN")
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken(testToken(t, time.Now().Add(time.Hour)))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/item/1", nil)
	require.NoError(t, err)
	res, err := c.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, c.Token(), "session should be cleared without retry")
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls), "no renewal attempt")
}

func TestSilentRenewalFollowsEverySuccess(t *testing.T) {
	var refreshCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/users/refresh" {
			atomic.AddInt32(&refreshCalls, 1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"token": testToken(t, time.Now().Add(5*time.Hour)),
			})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	// a token nowhere near expiry still gets opportunistically renewed
	c.SetToken(testToken(t, time.Now().Add(4*time.Hour)))
	oldToken := c.Token()

	require.NoError(t, c.GetJSON(context.Background(), "/api/item/1", nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	assert.NotEqual(t, oldToken, c.Token(), "token should have been renewed")

	require.NoError(t, c.GetJSON(context.Background(), "/api/item/1", nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&refreshCalls), "every success renews")
}

func TestSilentRenewalFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/users/refresh" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	token := testToken(t, time.Now().Add(4*time.Hour))
	c.SetToken(token)

	require.NoError(t, c.GetJSON(context.Background(), "/api/item/1", nil))
	assert.Equal(t, token, c.Token(), "session survives a failed silent renewal")
}

func TestNoSession(t *testing.T) {
	c := New("http://localhost:0")
	req, err := http.NewRequest(http.MethodGet, "http://localhost:0/api/item/1", nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	assert.Equal(t, ErrNoSession, err)
}
