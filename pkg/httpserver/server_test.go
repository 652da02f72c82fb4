package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/dataset"
	"github.com/snow-ghost/featsel/pkg/config"
	"github.com/snow-ghost/featsel/pkg/fetch"
	"github.com/snow-ghost/featsel/pkg/store"
	"github.com/snow-ghost/featsel/policy/local"
	"github.com/snow-ghost/featsel/worker"
)

// stubRunner records the job and answers with a fixed report or error.
type stubRunner struct {
	job worker.Job
	err error
}

func (s *stubRunner) Run(_ context.Context, job worker.Job) (*worker.Report, error) {
	s.job = job
	if s.err != nil {
		return nil, s.err
	}
	score := 1.5
	return &worker.Report{
		RunID:       "run-1",
		Dataset:     job.Dataset.Name,
		ProblemType: string(job.Dataset.Task),
		Results: map[string]worker.MethodResult{
			worker.GAMethod: {Selected: []string{"a"}, Score: &score, Time: 0.1},
		},
		Plots: []string{},
	}, nil
}

type stubFetcher struct {
	file *fetch.File
	err  error
}

func (f *stubFetcher) Get(context.Context, string) (*fetch.File, error) { return f.file, f.err }

type protectingFetcher struct {
	stubFetcher
	reset []string
}

func (f *protectingFetcher) Protection(host string) map[string]interface{} {
	if host == "" {
		return map[string]interface{}{"data.example.com": map[string]interface{}{"closed": false}}
	}
	return map[string]interface{}{"host": host, "closed": false}
}

func (f *protectingFetcher) ResetProtection(host string) { f.reset = append(f.reset, host) }

func csvData(rows int) string {
	var b strings.Builder
	b.WriteString("a,b,c,target\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%d,%d,%d\n", i, i*2%7, i%3, i*3)
	}
	return b.String()
}

type testEnv struct {
	srv    *Server
	runner *stubRunner
	runs   *store.Manager
	data   *dataset.Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.UploadDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()

	data, err := dataset.NewStore(cfg.Paths.UploadDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	runs, err := store.NewManager(store.Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	runner := &stubRunner{}
	srv := NewServer(Deps{
		Config:   cfg,
		Runner:   runner,
		Datasets: data,
		Runs:     runs,
		Fetcher:  &stubFetcher{file: &fetch.File{Name: "remote.csv", Data: []byte(csvData(20))}},
	})
	return &testEnv{srv: srv, runner: runner, runs: runs, data: data}
}

func multipartBody(t *testing.T, fields map[string][]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestRunWithUploadedFile(t *testing.T) {
	env := newEnv(t)
	body, ct := multipartBody(t, map[string][]string{
		"target_column": {"target"},
		"pop_size":      {"20"},
		"generations":   {"6"},
		"mode":          {"selected"},
		"methods":       {"RFE", "LassoCV"},
	}, "houses.csv", csvData(30))
	req := httptest.NewRequest(http.MethodPost, "/api/run", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	job := env.runner.job
	if job.Dataset.Name != "houses" {
		t.Errorf("dataset name = %q, want houses", job.Dataset.Name)
	}
	if job.Dataset.Features() != 3 || job.Dataset.Rows() != 30 {
		t.Errorf("dataset shape = %dx%d", job.Dataset.Rows(), job.Dataset.Features())
	}
	if job.Params.PopSize != 20 || job.Params.Generations != 6 {
		t.Errorf("params = %+v", job.Params)
	}
	if job.Params.CV != 3 || job.Params.MutationRate != 0.02 {
		t.Errorf("defaults not applied: %+v", job.Params)
	}
	if job.Params.Seed == nil || *job.Params.Seed != 42 {
		t.Errorf("default seed not applied")
	}
	if job.Mode != "selected" || len(job.Methods) != 2 || job.Methods[0] != "RFE" {
		t.Errorf("mode/methods = %s %v", job.Mode, job.Methods)
	}
	if job.RequestID == "" {
		t.Error("request id not propagated")
	}
	if rec.Header().Get(requestIDHeader) != job.RequestID {
		t.Error("response request id differs from the job's")
	}

	var rep worker.Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.RunID != "run-1" || rep.Dataset != "houses" {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunWithURLAndStoredDataset(t *testing.T) {
	env := newEnv(t)

	form := url.Values{"url": {"https://example.com/remote.csv"}, "seed": {"random"}}
	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("url run status = %d, body %s", rec.Code, rec.Body)
	}
	if env.runner.job.Dataset.Name != "remote" {
		t.Errorf("dataset name = %q, want remote", env.runner.job.Dataset.Name)
	}
	if env.runner.job.Params.Seed != nil {
		t.Error("seed=random must leave the seed unset")
	}

	if _, err := env.data.Save("stored.csv", strings.NewReader(csvData(12))); err != nil {
		t.Fatal(err)
	}
	form = url.Values{"dataset": {"stored"}, "problem_type": {"regression"}}
	req = httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("stored run status = %d, body %s", rec.Code, rec.Body)
	}
	if env.runner.job.Dataset.Rows() != 12 {
		t.Errorf("rows = %d, want 12", env.runner.job.Dataset.Rows())
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string][]string
		file   string
		field  string
	}{
		{"no data", map[string][]string{}, "", "file"},
		{"pop size", map[string][]string{"pop_size": {"5"}}, "d.csv", "pop_size"},
		{"generations", map[string][]string{"generations": {"101"}}, "d.csv", "generations"},
		{"mutation", map[string][]string{"mutation_rate": {"0.5"}}, "d.csv", "mutation_rate"},
		{"crossover", map[string][]string{"crossover_rate": {"0.2"}}, "d.csv", "crossover_rate"},
		{"cv", map[string][]string{"cv": {"11"}}, "d.csv", "cv"},
		{"not a number", map[string][]string{"cv": {"three"}}, "d.csv", "cv"},
		{"nan mutation", map[string][]string{"mutation_rate": {"NaN"}}, "d.csv", "mutation_rate"},
		{"nan crossover", map[string][]string{"crossover_rate": {"nan"}}, "d.csv", "crossover_rate"},
		{"infinite penalty", map[string][]string{"lambda_penalty": {"Inf"}}, "d.csv", "lambda_penalty"},
		{"problem type", map[string][]string{"problem_type": {"ranking"}}, "d.csv", "problem_type"},
		{"extension", map[string][]string{}, "d.txt", "file"},
		{"target", map[string][]string{"target_column": {"nope"}}, "d.csv", "target_column"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t)
			body, ct := multipartBody(t, tc.fields, tc.file, csvData(10))
			req := httptest.NewRequest(http.MethodPost, "/api/run", body)
			req.Header.Set("Content-Type", ct)
			rec := env.do(req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
			}
			e := decodeError(t, rec)
			if e.Code != "INVALID_REQUEST" || e.Details["field"] != tc.field {
				t.Errorf("error = %+v, want field %s", e, tc.field)
			}
		})
	}
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{local.ErrRunTimeout, http.StatusGatewayTimeout, "RUN_TIMEOUT"},
		{fmt.Errorf("run x: %w", worker.ErrNoFeasible), http.StatusInternalServerError, "RUN_FAILED"},
		{&core.ContractError{Field: "model_type", Reason: "bad"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		env := newEnv(t)
		env.runner.err = tc.err
		body, ct := multipartBody(t, nil, "d.csv", csvData(10))
		req := httptest.NewRequest(http.MethodPost, "/api/run", body)
		req.Header.Set("Content-Type", ct)
		rec := env.do(req)
		if rec.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
			continue
		}
		if e := decodeError(t, rec); e.Code != tc.code {
			t.Errorf("%v: code = %s, want %s", tc.err, e.Code, tc.code)
		}
	}
}

func TestRunDownloadFailure(t *testing.T) {
	env := newEnv(t)
	env.srv.fetcher = &stubFetcher{err: fmt.Errorf("fetch: %w", context.DeadlineExceeded)}
	form := url.Values{"url": {"https://example.com/x.csv"}}
	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "DOWNLOAD_FAILED" || e.Message != "URL request timed out" {
		t.Errorf("error = %+v", e)
	}
}

func TestDatasetEndpoints(t *testing.T) {
	env := newEnv(t)

	body, ct := multipartBody(t, nil, "sales.csv", csvData(8))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	var info dataset.Info
	json.NewDecoder(rec.Body).Decode(&info)
	if info.Filename != "sales.csv" || info.Rows != 8 || info.Columns != 4 {
		t.Errorf("info = %+v", info)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	var list struct {
		Datasets []dataset.Info `json:"datasets"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Datasets) != 1 || list.Datasets[0].Name != "sales" {
		t.Errorf("datasets = %+v", list.Datasets)
	}

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/dataset/sales.csv", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/dataset/sales.csv", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestRunsEndpoints(t *testing.T) {
	env := newEnv(t)
	for i, ds := range []string{"a", "b", "a"} {
		err := env.runs.Save(store.RunRecord{
			ID:          fmt.Sprintf("r%d", i),
			CreatedAt:   time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
			Dataset:     ds,
			ProblemType: "regression",
			Selected:    []string{"x"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs?dataset=a", nil))
	var list struct {
		Runs []store.RunRecord `json:"runs"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Runs) != 2 || list.Runs[0].ID != "r2" {
		t.Errorf("runs = %+v", list.Runs)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs?format=csv", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %s", ct)
	}
	if lines := strings.Count(strings.TrimSpace(rec.Body.String()), "\n"); lines != 3 {
		t.Errorf("csv has %d data lines, want 3", lines)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", rec.Code)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestProtectionEndpoints(t *testing.T) {
	env := newEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/protection", nil))
	if rec.Code != http.StatusServiceUnavailable || decodeError(t, rec).Code != "PROTECTION_DISABLED" {
		t.Fatalf("status = %d body %s, want 503 PROTECTION_DISABLED", rec.Code, rec.Body)
	}

	pf := &protectingFetcher{}
	env.srv.fetcher = pf
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/protection", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "data.example.com") {
		t.Errorf("all hosts: status %d body %s", rec.Code, rec.Body)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/protection?host=data.example.com", nil))
	var one map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil || one["host"] != "data.example.com" {
		t.Errorf("one host: %v %s", err, rec.Body)
	}

	if rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/protection/data.example.com", nil)); rec.Code != http.StatusOK {
		t.Errorf("reset host status = %d", rec.Code)
	}
	if rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/protection", nil)); rec.Code != http.StatusOK {
		t.Errorf("reset all status = %d", rec.Code)
	}
	if len(pf.reset) != 2 || pf.reset[0] != "data.example.com" || pf.reset[1] != "" {
		t.Errorf("resets = %q", pf.reset)
	}
}

func TestInfoEndpointsAndMiddleware(t *testing.T) {
	env := newEnv(t)

	for _, path := range []string{"/health", "/api/health", "/api/methods", "/metrics"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("%s: missing CORS header", path)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/run", nil)
	req.Header.Set("Access-Control-Request-Method", "POST")
	if rec := env.do(req); rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}

	id := "6f1c0a52-5c1e-4b0e-9a53-0d1f6bd3b1a7"
	req = httptest.NewRequest(http.MethodGet, "/api/methods", nil)
	req.Header.Set(requestIDHeader, id)
	if rec := env.do(req); rec.Header().Get(requestIDHeader) != id {
		t.Errorf("request id not echoed")
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "featsel_http_requests_total") {
		t.Error("http requests are not counted")
	}
}

func TestEndToEndWithService(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	runs, _ := store.NewManager(store.Config{Driver: "memory"})
	svc := worker.NewService(worker.Options{Store: runs, OutputDir: cfg.Paths.OutputDir})
	srv := NewServer(Deps{Config: cfg, Runner: svc, Runs: runs})

	body, ct := multipartBody(t, map[string][]string{
		"target_column": {"target"},
		"pop_size":      {"10"},
		"generations":   {"5"},
		"mode":          {"selected"},
		"methods":       {"SelectKBest"},
	}, "lin.csv", csvData(40))
	req := httptest.NewRequest(http.MethodPost, "/api/run", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var rep worker.Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if _, ok := rep.Results["SelectKBest"]; !ok {
		t.Errorf("results = %v", rep.Results)
	}
	if len(rep.Plots) == 0 {
		t.Fatal("no plots rendered")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, rep.Plots[0], nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("plot fetch: status %d type %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+rep.RunID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("stored run status = %d", rec.Code)
	}
}
