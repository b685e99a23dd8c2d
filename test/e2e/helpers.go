//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/api/handlers"
	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/extract"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
	"github.com/jpark8215/internal-chatbot/internal/repository"
	"github.com/jpark8215/internal-chatbot/internal/server"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/jpark8215/internal-chatbot/internal/storage"
	"github.com/jpark8215/internal-chatbot/internal/testutil"
)

const (
	testBucket = "e2e-documents"
	testPrefix = "handbook/"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	Root         string
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client

	Recorder   *metrics.Recorder
	Caches     *cache.Layer
	Feedback   *repository.FeedbackRepository
	Ingest     *service.IngestionService
	Retrieval  *service.RetrievalService
	Sources    *service.SourceService
	CleanupSvc *service.CleanupService
	Mirror     *storage.S3Mirror
}

// SetupE2EEnv starts Postgres and RustFS, wires the services over a temporary
// ingest root and serves the ops router on a free port.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		Root:       t.TempDir(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.wire()

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)

	return env
}

func (e *E2ETestEnv) wire() {
	e.Recorder = metrics.NewRecorder()
	e.Caches = cache.NewLayer(cache.DefaultLayerConfig(testutil.EmbeddingModel), cache.WithObserver(e.Recorder))

	chunker, err := service.NewChunker(service.ChunkConfig{ChunkSize: 200})
	if err != nil {
		e.T.Fatalf("failed to create chunker: %v", err)
	}

	embedder := &hashEmbedder{dim: testutil.EmbeddingDim}
	chunks := repository.NewChunkRepository(e.Pool)
	sources := repository.NewSourceRepository(e.Pool)
	tx := repository.NewTxRunner(e.Pool)
	e.Feedback = repository.NewFeedbackRepository(e.Pool)

	e.Ingest = service.NewIngestionService(extract.NewRegistry(), embedder, chunker, chunks, sources, tx,
		e.Caches, e.Recorder, service.DefaultIngestConfig())
	e.Retrieval = service.NewRetrievalService(service.RetrievalDeps{
		Search:      repository.NewSearchRepository(e.Pool),
		Embedder:    embedder,
		Counter:     chunks,
		Preferences: e.Feedback,
		Log:         repository.NewRetrievalLogRepository(e.Pool),
		Rewriter:    service.NewQueryRewriter(nil, service.DefaultRewriterConfig()),
		Caches:      e.Caches,
		Metrics:     e.Recorder,
	}, service.DefaultRetrievalPolicy(), service.RetrievalConfig{TopK: 5, Model: testutil.EmbeddingModel})
	e.Sources = service.NewSourceService(chunks, sources, tx, e.Caches, e.Recorder)
	e.CleanupSvc = service.NewCleanupService(chunks, sources, e.Sources, e.Ingest.Supports, e.Recorder)
	e.Mirror = storage.NewS3Mirror(e.S3Client, testPrefix, e.Root, e.Ingest.Supports)
}

func (e *E2ETestEnv) startServer(port int) (string, func()) {
	ops := handlers.NewOpsHandler(handlers.OpsConfig{
		DB:       e.Pool,
		Caches:   e.Caches,
		Sources:  e.Sources,
		Sync:     e.CleanupSvc,
		Feedback: e.Feedback,
		Root:     e.Root,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: server.NewRouter(server.RouterConfig{Ops: ops, Metrics: e.Recorder.Handler()}),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// WriteDoc writes a document under the ingest root and returns its path.
func (e *E2ETestEnv) WriteDoc(rel, content string) string {
	path := filepath.Join(e.Root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.T.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.T.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}

// Touch moves a file's modification time forward.
func (e *E2ETestEnv) Touch(path string, d time.Duration) {
	ts := time.Now().Add(d)
	if err := os.Chtimes(path, ts, ts); err != nil {
		e.T.Fatalf("failed to touch %s: %v", path, err)
	}
}

// HasChunks reports whether the store holds chunks for path.
func (e *E2ETestEnv) HasChunks(path string) bool {
	var n int
	err := e.Pool.QueryRow(e.Ctx, "SELECT COUNT(*) FROM documents WHERE source_file = $1", path).Scan(&n)
	if err != nil {
		e.T.Fatalf("failed to count chunks: %v", err)
	}
	return n > 0
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, apiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		return apiResp, fmt.Errorf("API error %d: %s", resp.StatusCode, apiResp.Error)
	}
	return apiResp, nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// hashEmbedder maps each lowercase word to a bucket and L2-normalizes the
// counts, so texts sharing vocabulary land close together.
type hashEmbedder struct {
	dim int
}

func (h *hashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[int(f.Sum32())%h.dim]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

func (h *hashEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := h.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
