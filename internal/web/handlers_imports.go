package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/logging"
)

// multipartOverhead is allowed on top of the file size limit for the form
// envelope.
const multipartOverhead = 1 << 20

// maxCorrectionsBytes bounds the commit request body.
const maxCorrectionsBytes = 4 << 20

// RowView is one staged row as sent to the admin frontend.
type RowView struct {
	Index  int               `json:"row_index"`
	Values map[string]string `json:"values"`
	Valid  bool              `json:"valid"`
	Errors core.FieldErrors  `json:"errors,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// BatchView is a staged batch. Rows holds either every row or only the
// failing ones, depending on the request.
type BatchView struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"file_name"`
	Kind        string    `json:"kind"`
	Headers     []string  `json:"headers"`
	TotalRows   int       `json:"total_rows"`
	ValidRows   int       `json:"valid_rows"`
	FailingRows int       `json:"failing_rows"`
	CreatedAt   time.Time `json:"created_at"`
	Rows        []RowView `json:"rows"`
}

// CommitResponse is the result of a commit. Restaged is the batch left for
// the next correction round, if any.
type CommitResponse struct {
	Outcome  *core.ImportOutcome `json:"outcome"`
	Restaged *BatchView          `json:"restaged,omitempty"`
}

func newBatchView(b *core.Batch, failingOnly bool) *BatchView {
	failing := b.Failing()
	v := &BatchView{
		ID:          b.ID,
		FileName:    b.FileName,
		Kind:        b.Kind.String(),
		Headers:     b.Headers,
		TotalRows:   len(b.Rows),
		ValidRows:   b.ValidCount(),
		FailingRows: len(failing),
		CreatedAt:   b.CreatedAt,
		Rows:        []RowView{},
	}

	rows := b.Rows
	if failingOnly {
		rows = failing
	}
	for _, r := range rows {
		v.Rows = append(v.Rows, RowView{
			Index:  r.Index,
			Values: r.Record.Texts(),
			Valid:  r.Valid,
			Errors: r.Errors,
			Reason: r.RowError,
		})
	}
	return v
}

// handleStage decodes and validates an uploaded file and stages it for the
// session, replacing any batch staged before.
func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondError(w, r, core.ErrFileTooLarge)
			return
		}
		respondError(w, r, errNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	if header.Size > s.cfg.Upload.MaxBytes {
		respondError(w, r, core.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	b, err := s.deps.Imports.Stage(r.Context(), sessionFrom(r.Context()), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newBatchView(b, true))
}

// handleCurrent returns the staged batch. ?failing=1 limits rows to the
// ones needing correction.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Imports.Current(sessionFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	failingOnly, _ := strconv.ParseBool(r.URL.Query().Get("failing"))
	writeJSON(w, http.StatusOK, newBatchView(b, failingOnly))
}

// handleCommit applies the optional corrections body and commits the
// staged batch.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	corrections, err := readCorrections(http.MaxBytesReader(w, r.Body, maxCorrectionsBytes))
	if err != nil {
		respondError(w, r, err)
		return
	}

	outcome, restaged, err := s.deps.Imports.Commit(r.Context(), sessionFrom(r.Context()), corrections)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import committed",
		"batch_id", outcome.BatchID,
		"succeeded", outcome.SuccessCount,
		"failed", outcome.FailureCount)

	resp := CommitResponse{Outcome: outcome}
	if restaged != nil {
		resp.Restaged = newBatchView(restaged, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel discards the session's staged batch.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.deps.Imports.Cancel(sessionFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleExportFailing downloads the failing rows as CSV with their errors,
// so they can be fixed offline and uploaded again.
func (s *Server) handleExportFailing(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Imports.Current(sessionFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("failing_rows_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	cw.Write(append([]string{"_row", "_error"}, b.Headers...))
	for _, row := range b.Failing() {
		record := []string{strconv.Itoa(row.Index), rowProblem(row)}
		for _, h := range b.Headers {
			record = append(record, row.Record.Text(h))
		}
		cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("csv export failed", "error", err)
	}
}

// rowProblem summarizes why a row is failing.
func rowProblem(row core.ValidatedRow) string {
	var parts []string
	for _, name := range row.Errors.Names() {
		parts = append(parts, row.Errors[name])
	}
	if row.RowError != "" {
		parts = append(parts, row.RowError)
	}
	return strings.Join(parts, "; ")
}

// readCorrections parses {"<row>": {"<field>": "<value>"}}. An empty body
// means no corrections.
func readCorrections(body io.Reader) (core.Corrections, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, core.ErrFileTooLarge
		}
		return nil, fmt.Errorf("read corrections: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}

	out := make(core.Corrections, len(raw))
	for key, fields := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%w: row key %q", errBadBody, key)
		}
		out[idx] = fields
	}
	return out, nil
}
