package httpserver

import (
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/dataset"
	"github.com/snow-ghost/featsel/worker"
)

// multipartSlack covers the form fields and boundaries around the file.
const multipartSlack = 1 << 20

// handleRun accepts a multipart (or urlencoded) form naming the data source
// and the run options, runs the job and returns its report.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, r, errors.New("run service is not configured"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, dataset.MaxFileSize+multipartSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, r, formFileError(err))
		return
	}

	job, err := s.parseJob(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.loadDataset(r, job.Dataset.Task)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job.Dataset = d

	rep, err := s.runner.Run(r.Context(), job)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// parseJob reads every option except the data. The returned job carries a
// placeholder dataset holding only the task kind.
func (s *Server) parseJob(r *http.Request) (worker.Job, error) {
	defaults := s.cfg.Run
	f := form{r: r}

	task, err := core.ParseTaskKind(f.str("problem_type", string(core.Regression)))
	if err != nil {
		return worker.Job{}, err
	}

	p := defaults.GA
	p.PopSize = f.int("pop_size", p.PopSize)
	p.Generations = f.int("generations", p.Generations)
	p.MutationRate = f.float("mutation_rate", p.MutationRate)
	p.CrossoverRate = f.float("crossover_rate", p.CrossoverRate)
	p.CV = f.int("cv", p.CV)
	p.Patience = f.int("patience", p.Patience)
	p.LambdaPenalty = f.float("lambda_penalty", p.LambdaPenalty)
	p.MaxSamples = f.int("max_samples", p.MaxSamples)
	switch v := strings.TrimSpace(r.FormValue("seed")); v {
	case "":
		seed := defaults.Seed
		p.Seed = &seed
	case "random":
		p.Seed = nil
	default:
		seed, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			f.fail("seed", "must be a non-negative integer or 'random'")
		}
		p.Seed = &seed
	}
	if f.err != nil {
		return worker.Job{}, f.err
	}
	if p.TournamentSize > p.PopSize {
		p.TournamentSize = p.PopSize
	}
	if err := core.ValidateRequest(p); err != nil {
		return worker.Job{}, err
	}

	var methods []string
	if r.MultipartForm != nil {
		methods = r.MultipartForm.Value["methods"]
	} else {
		methods = r.Form["methods"]
	}
	// A single comma-separated value is accepted too.
	if len(methods) == 1 && strings.Contains(methods[0], ",") {
		methods = strings.Split(methods[0], ",")
	}
	for i := range methods {
		methods[i] = strings.TrimSpace(methods[i])
	}

	return worker.Job{
		Dataset:   &core.Dataset{Task: task},
		Params:    p,
		ModelType: f.str("model_type", defaults.ModelType),
		GAVersion: f.str("ga_version", defaults.GAVersion),
		Mode:      f.str("mode", defaults.Mode),
		Methods:   methods,
		RequestID: requestIDFrom(r),
	}, nil
}

// loadDataset reads the data from, in order of precedence, an uploaded file,
// a URL or the name of a stored dataset, and prepares it for the task.
func (s *Server) loadDataset(r *http.Request, task core.TaskKind) (*core.Dataset, error) {
	var (
		name string
		data []byte
	)
	switch {
	case hasFile(r):
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, formFileError(err)
		}
		defer file.Close()
		if err := dataset.CheckExtension(header.Filename); err != nil {
			return nil, err
		}
		if header.Size > dataset.MaxFileSize {
			return nil, &core.ContractError{Field: "file", Reason: "file too large, maximum size is 50MB"}
		}
		if data, err = io.ReadAll(file); err != nil {
			return nil, formFileError(err)
		}
		name = header.Filename

	case strings.TrimSpace(r.FormValue("url")) != "":
		if s.fetcher == nil {
			return nil, &core.ContractError{Field: "url", Reason: "URL downloads are disabled"}
		}
		file, err := s.fetcher.Get(r.Context(), r.FormValue("url"))
		if err != nil {
			if core.IsContractError(err) {
				return nil, err
			}
			return nil, &errDownload{err: err}
		}
		name, data = file.Name, file.Data

	case strings.TrimSpace(r.FormValue("dataset")) != "":
		if s.datasets == nil {
			return nil, dataset.ErrNotFound
		}
		path, err := s.datasets.Path(r.FormValue("dataset"))
		if err != nil {
			return nil, err
		}
		t, err := dataset.Load(path)
		if err != nil {
			return nil, err
		}
		return dataset.Prepare(t, dataset.Stem(path), r.FormValue("target_column"), task)

	default:
		return nil, &core.ContractError{Field: "file", Reason: "please provide either a data file or a URL"}
	}

	t, err := dataset.Parse(name, data)
	if err != nil {
		return nil, err
	}
	return dataset.Prepare(t, dataset.Stem(name), r.FormValue("target_column"), task)
}

func hasFile(r *http.Request) bool {
	if r.MultipartForm == nil {
		return false
	}
	return len(r.MultipartForm.File["file"]) > 0
}

func formFileError(err error) error {
	var mb *http.MaxBytesError
	switch {
	case errors.As(err, &mb):
		return err
	case errors.Is(err, http.ErrMissingFile):
		return &core.ContractError{Field: "file", Reason: "no file uploaded"}
	case errors.Is(err, multipart.ErrMessageTooLarge):
		return &core.ContractError{Field: "file", Reason: "file too large, maximum size is 50MB"}
	}
	return &core.ContractError{Field: "file", Reason: "malformed form: " + err.Error()}
}

// form parses optional fields, keeping the first error.
type form struct {
	r   *http.Request
	err error
}

func (f *form) fail(field, reason string) {
	if f.err == nil {
		f.err = &core.ContractError{Field: field, Reason: reason}
	}
}

func (f *form) str(key, def string) string {
	if v := strings.TrimSpace(f.r.FormValue(key)); v != "" {
		return v
	}
	return def
}

func (f *form) int(key string, def int) int {
	v := strings.TrimSpace(f.r.FormValue(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f.fail(key, "must be an integer")
		return def
	}
	return n
}

func (f *form) float(key string, def float64) float64 {
	v := strings.TrimSpace(f.r.FormValue(key))
	if v == "" {
		return def
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		f.fail(key, "must be a finite number")
		return def
	}
	return x
}
