package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/objectinfo", r.URL.Path)
		assert.Equal(t, "SN123", r.URL.Query().Get("objectid"))
		assert.Equal(t, "Shop1", r.URL.Query().Get("objectname"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":0,"objectid":"SN123","expiredate":"2030-01-01","active":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	info, err := client.Validate(context.Background(), Query{
		ObjectID:   "SN123",
		ObjectName: "Shop1",
		AppType:    "posdevice",
		AppVersion: "1.0.0",
		DBType:     "mysql",
	})

	require.NoError(t, err)
	assert.Equal(t, "SN123", info.ObjectID)
	assert.True(t, info.Active)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), info.Expiry())
}

func TestValidateObjectNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":4,"message":"object not found"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Validate(context.Background(), Query{ObjectID: "SN404"})
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestValidateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":2,"objectid":"SN123","message":"subscription expired"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	info, err := client.Validate(context.Background(), Query{ObjectID: "SN123"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "subscription expired", info.Message)
}

func TestValidateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Validate(context.Background(), Query{ObjectID: "SN123"})
	assert.Error(t, err)
}

func TestValidateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use

	client := NewClient(srv.URL)
	_, err := client.Validate(context.Background(), Query{ObjectID: "SN123"})
	assert.Error(t, err)
}

func TestExpiryMalformedDate(t *testing.T) {
	info := ObjectInfo{ExpireDate: "not-a-date"}
	assert.True(t, info.Expiry().IsZero())
}
