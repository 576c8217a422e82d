package filesystem

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hookstore/hookstore/internal/endpoint"
	"github.com/hookstore/hookstore/internal/history"
	"github.com/hookstore/hookstore/internal/idalloc"
	"github.com/hookstore/hookstore/internal/registry"
	"github.com/hookstore/hookstore/internal/transfer"
)

// fakeService stands in for the webhook platform: every uploaded chunk
// becomes a fetchable blob URL.
type fakeService struct {
	mu    sync.Mutex
	blobs map[string][]byte
	srv   *httptest.Server
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	s := &fakeService{blobs: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("/hooks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.blobs[header.Filename] = data
		s.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"attachments": []map[string]string{
				{"url": s.srv.URL + "/blobs/" + header.Filename},
			},
		})
	})
	mux.HandleFunc("/blobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		data, ok := s.blobs[strings.TrimPrefix(r.URL.Path, "/blobs/")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newTestFileSystem(t *testing.T, service *fakeService, chunkSize int64) (*FileSystem, *registry.Registry, *history.Store) {
	t.Helper()
	return newTestFileSystemWithSpace(t, service, chunkSize, 1, 9999)
}

func newTestFileSystemWithSpace(t *testing.T, service *fakeService, chunkSize int64, idMin, idMax int) (*FileSystem, *registry.Registry, *history.Store) {
	t.Helper()

	hooks := []string{service.srv.URL + "/hooks/0", service.srv.URL + "/hooks/1"}
	pool, err := endpoint.NewPool(hooks)
	require.NoError(t, err)

	log := logrus.New()
	log.Out = io.Discard

	client := endpoint.NewWebhookClient(5 * time.Second)
	policy := transfer.Policy{Attempts: 2, Base: time.Millisecond, Max: 5 * time.Millisecond}
	engine := transfer.NewEngine(pool, client, t.TempDir(), 2, 0, policy, log)

	reg := registry.Open(filepath.Join(t.TempDir(), "registry.json"))
	alloc, err := idalloc.New(idMin, idMax)
	require.NoError(t, err)

	hist, err := history.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	return New(reg, alloc, engine, hist, chunkSize, log), reg, hist
}

func writeSourceFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 239)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	service := newFakeService(t)
	fs, reg, _ := newTestFileSystem(t, service, 1000)

	src, data := writeSourceFile(t, "payload.bin", 3500)

	id, err := fs.UploadFile(context.Background(), src)
	require.NoError(t, err)
	require.GreaterOrEqual(t, id, 1)
	require.LessOrEqual(t, id, 9999)

	rec, err := reg.Get(id)
	require.NoError(t, err)
	require.Equal(t, "payload.bin", rec.Filename)
	require.Equal(t, int64(3500), rec.Size)
	require.Len(t, rec.URLs, 4)

	out, err := fs.DownloadFile(context.Background(), id, t.TempDir())
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestUploadEmptyFile(t *testing.T) {
	service := newFakeService(t)
	fs, reg, _ := newTestFileSystem(t, service, 1000)

	src, _ := writeSourceFile(t, "empty.bin", 0)

	id, err := fs.UploadFile(context.Background(), src)
	require.NoError(t, err)

	rec, err := reg.Get(id)
	require.NoError(t, err)
	require.Zero(t, rec.Size)
	require.Empty(t, rec.URLs)

	out, err := fs.DownloadFile(context.Background(), id, t.TempDir())
	require.NoError(t, err)
	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestUploadMissingSourceFile(t *testing.T) {
	service := newFakeService(t)
	fs, reg, _ := newTestFileSystem(t, service, 1000)

	_, err := fs.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)

	ids, err := reg.IDs()
	require.NoError(t, err)
	require.Empty(t, ids, "nothing may be committed for a failed upload")
}

func TestConcurrentUploadsGetDistinctIDs(t *testing.T) {
	service := newFakeService(t)
	fs, reg, _ := newTestFileSystemWithSpace(t, service, 1000, 1, 2)

	sources := []string{}
	for _, name := range []string{"a.bin", "b.bin"} {
		src, _ := writeSourceFile(t, name, 1500)
		sources = append(sources, src)
	}

	ids := make([]int, len(sources))
	errs := make([]error, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = fs.UploadFile(context.Background(), src)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NotEqual(t, ids[0], ids[1], "both uploads committed the same id")

	records, err := reg.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestDownloadUnknownID(t *testing.T) {
	service := newFakeService(t)
	fs, _, _ := newTestFileSystem(t, service, 1000)

	downloadDir := filepath.Join(t.TempDir(), "downloads")
	_, err := fs.DownloadFile(context.Background(), 42, downloadDir)
	require.ErrorIs(t, err, registry.ErrNotFound)

	_, statErr := os.Stat(downloadDir)
	require.True(t, os.IsNotExist(statErr), "no download directory may be created for an unknown id")
}

func TestListSortedByID(t *testing.T) {
	service := newFakeService(t)
	fs, reg, _ := newTestFileSystem(t, service, 1000)

	require.NoError(t, reg.Put(9, registry.FileRecord{Filename: "z.bin", Size: 30, URLs: []string{"u"}}))
	require.NoError(t, reg.Put(2, registry.FileRecord{Filename: "a.bin", Size: 10, URLs: []string{"u"}}))
	require.NoError(t, reg.Put(5, registry.FileRecord{Filename: "m.bin", Size: 20, URLs: []string{"u"}}))

	entries, err := fs.List()
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{ID: 2, Filename: "a.bin", Size: 10},
		{ID: 5, Filename: "m.bin", Size: 20},
		{ID: 9, Filename: "z.bin", Size: 30},
	}, entries)
}

func TestExportImportAcrossFileSystems(t *testing.T) {
	service := newFakeService(t)
	fs, _, _ := newTestFileSystem(t, service, 1000)

	src, data := writeSourceFile(t, "shared.bin", 1500)
	id, err := fs.UploadFile(context.Background(), src)
	require.NoError(t, err)

	exportPath, err := fs.Export(t.TempDir(), []int{id}, "snapshot")
	require.NoError(t, err)

	other, otherReg, _ := newTestFileSystem(t, service, 1000)
	count, err := other.Import(exportPath)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rec, err := otherReg.Get(id)
	require.NoError(t, err)
	require.Equal(t, "shared.bin", rec.Filename)

	out, err := other.DownloadFile(context.Background(), id, t.TempDir())
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestHistoryRecordsTransfers(t *testing.T) {
	service := newFakeService(t)
	fs, _, hist := newTestFileSystem(t, service, 1000)

	src, _ := writeSourceFile(t, "logged.bin", 2500)
	id, err := fs.UploadFile(context.Background(), src)
	require.NoError(t, err)

	_, err = fs.DownloadFile(context.Background(), id, t.TempDir())
	require.NoError(t, err)

	records, err := hist.ListTransfers()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byDirection := map[string]history.TransferRecord{}
	for _, rec := range records {
		byDirection[rec.Direction] = rec
	}
	up := byDirection[history.DirectionUpload]
	require.Equal(t, id, up.FileID)
	require.Equal(t, history.StatusCompleted, up.Status)
	require.Equal(t, 3, up.Chunks)
	require.Equal(t, int64(2500), up.Bytes)

	down := byDirection[history.DirectionDownload]
	require.Equal(t, id, down.FileID)
	require.Equal(t, history.StatusCompleted, down.Status)
}

func TestChunkCountScenario(t *testing.T) {
	service := newFakeService(t)
	fs, _, _ := newTestFileSystem(t, service, 24_000_000)

	require.Equal(t, 3, fs.ChunkCount(50_000_000))
}
