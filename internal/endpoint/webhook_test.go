package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWebhookUpload(t *testing.T) {
	var gotMethod, gotWait, gotName string
	var gotData []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotWait = r.URL.Query().Get("wait")

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		gotName = header.Filename
		gotData, _ = io.ReadAll(file)

		json.NewEncoder(w).Encode(map[string]any{
			"attachments": []map[string]string{
				{"url": "https://cdn.example/files/42.0"},
			},
		})
	}))
	defer srv.Close()

	client := NewWebhookClient(5 * time.Second)
	url, err := client.Upload(context.Background(), srv.URL, "42.0", strings.NewReader("chunk payload"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/files/42.0", url)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "true", gotWait)
	require.Equal(t, "42.0", gotName)
	require.Equal(t, "chunk payload", string(gotData))
}

func TestWebhookUploadNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewWebhookClient(5 * time.Second)
	_, err := client.Upload(context.Background(), srv.URL, "1.0", strings.NewReader("x"))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestWebhookUploadNoAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"attachments": []}`)
	}))
	defer srv.Close()

	client := NewWebhookClient(5 * time.Second)
	_, err := client.Upload(context.Background(), srv.URL, "1.0", strings.NewReader("x"))
	require.Error(t, err)
}

func TestWebhookFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stored bytes"))
	}))
	defer srv.Close()

	client := NewWebhookClient(5 * time.Second)
	body, err := client.Fetch(context.Background(), srv.URL+"/files/1")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "stored bytes", string(data))
}

func TestWebhookFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewWebhookClient(5 * time.Second)
	_, err := client.Fetch(context.Background(), srv.URL+"/files/missing")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusNotFound, te.StatusCode)
}

func TestWaitURLInvalidEndpoint(t *testing.T) {
	client := NewWebhookClient(time.Second)
	_, err := client.Upload(context.Background(), "://bad", "1.0", strings.NewReader("x"))
	require.Error(t, err)
}
