package analysis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":97,"issues":[]}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Execute(context.Background(), "delivery-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"score":97,"issues":[]}`, string(res))
}

func TestExecuteClassifiesServerErrorsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Execute(context.Background(), "delivery-1")
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, KindUnavailable, Kind(err))
}

func TestExecuteClassifiesClientErrorsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported codec", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Execute(context.Background(), "delivery-1")
	require.Error(t, err)
	require.False(t, IsTransient(err))
	require.Equal(t, KindValidation, Kind(err))
}

func TestExecuteRejectsNonJSONResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Execute(context.Background(), "delivery-1")
	require.Error(t, err)
	require.False(t, IsTransient(err))
}

func TestExecuteConnectionErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := NewClient(srv.URL).Execute(context.Background(), "delivery-1")
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, KindNetwork, Kind(err))
}

func TestIsTransientDefaultsToRetry(t *testing.T) {
	require.True(t, IsTransient(errors.New("connection reset by peer")))
	require.Equal(t, KindInternal, Kind(errors.New("connection reset by peer")))

	require.False(t, IsTransient(&Error{Kind: KindValidation, Transient: false}))
	require.True(t, IsTransient(&Error{Kind: KindNetwork, Transient: true}))
}
