package ipfs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_RoundTrip(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	id, err := mock.Pin(ctx, []byte("hello"), "greeting.txt")
	require.NoError(t, err)

	// Content ids are genuine CIDv0 identifiers.
	assert.True(t, strings.HasPrefix(id, "Qm"), "got %s", id)
	parsed, err := cid.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), parsed.Version())

	data, err := mock.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, mock.Probe(ctx, id))
	assert.Error(t, mock.Probe(ctx, "QmUnknown"))

	_, err = mock.Fetch(ctx, "QmUnknown")
	assert.Error(t, err)

	// Pinning is content-addressed: the same bytes map to the same id.
	again, err := mock.Pin(ctx, []byte("hello"), "other-name.txt")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestPinataClient_Pin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("pinata_api_key"))
		assert.Equal(t, "test-secret", r.Header.Get("pinata_secret_api_key"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.enc", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"IpfsHash": "QmPinned"})
	}))
	defer srv.Close()

	client := NewPinataClient(srv.URL, "test-key", "test-secret")
	id, err := client.Pin(context.Background(), []byte("ciphertext"), "report.enc")
	require.NoError(t, err)
	assert.Equal(t, "QmPinned", id)
}

func TestPinataClient_PinErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		client := NewPinataClient(srv.URL, "bad", "creds")
		_, err := client.Pin(context.Background(), []byte("x"), "f")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})

	t.Run("missing content id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := NewPinataClient(srv.URL, "k", "s")
		_, err := client.Pin(context.Background(), []byte("x"), "f")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no content id")
	})
}

func TestGatewayClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmBlob", r.URL.Path)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	data, err := client.Fetch(context.Background(), "QmBlob")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestGatewayClient_FetchTimeoutStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	_, err := client.Fetch(context.Background(), "QmBlob")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGatewayClient_FetchHardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	_, err := client.Fetch(context.Background(), "QmBlob")
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}

func TestGatewayClient_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/ipfs/QmBlob" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	assert.NoError(t, client.Probe(context.Background(), "QmBlob"))
	assert.Error(t, client.Probe(context.Background(), "QmOther"))
}
