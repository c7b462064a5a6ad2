package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tradelens/internal/dataprocessing"
	apierrors "tradelens/internal/errors"
	"tradelens/internal/services"
	"tradelens/internal/validation"
)

const (
	// UploadField is the multipart field carrying ledger files.
	UploadField = "files"
	// multipartMemory is held in memory before parts spill to disk.
	multipartMemory = 8 << 20
)

// LedgerHandler handles ledger analysis and export requests with RFC 7807
// errors
type LedgerHandler struct {
	service      LedgerServiceInterface
	validator    *validation.RequestValidator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(service LedgerServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *LedgerHandler {
	return &LedgerHandler{
		service:      service,
		validator:    validation.NewRequestValidator(),
		logger:       logger.With(slog.String("component", "ledger_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the ledger routes
func (h *LedgerHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/analyze", h.Analyze)
	r.Post("/export", h.Export)
	return r
}

// AnalyzeResponse is the body of a successful analysis
type AnalyzeResponse struct {
	Status string             `json:"status"`
	Data   *services.Analysis `json:"data"`
}

// Analyze handles POST /api/ledger/analyze
func (h *LedgerHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	params := validation.AnalyzeParams{Groups: queryList(r, "group")}
	if err := h.validator.ValidateStruct(params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	groups, err := services.ParseGroups(params.Groups)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("group", err.Error()))
		return
	}
	if len(groups) == 0 {
		groups = nil
	}

	uploads, err := readUploads(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "analyzing ledgers",
		slog.String("request_id", reqID),
		slog.Int("files", len(uploads)),
		slog.Int("groups", len(groups)))

	analysis, err := h.service.Analyze(r.Context(), uploads, groups)
	if err != nil {
		h.handleLedgerError(w, r, err, analysis)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, AnalyzeResponse{Status: "success", Data: analysis})
}

// Export handles POST /api/ledger/export. The processed ledger is returned
// as a CSV attachment named after the filename query parameter.
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	params := validation.ExportParams{Filename: r.URL.Query().Get("filename")}
	if err := h.validator.ValidateStruct(params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	filename := validation.ExportFilename(params.Filename)

	uploads, err := readUploads(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), uploads, &buf); err != nil {
		h.handleLedgerError(w, r, err, nil)
		return
	}

	h.logger.InfoContext(r.Context(), "ledger exported",
		slog.String("request_id", reqID),
		slog.String("filename", filename),
		slog.Int("bytes", buf.Len()))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleLedgerError renders err. An empty result keeps its summary as an
// extension so clients can still show the zero state.
func (h *LedgerHandler) handleLedgerError(w http.ResponseWriter, r *http.Request, err error, analysis *services.Analysis) {
	var emptyErr *dataprocessing.EmptyResultError
	if errors.As(err, &emptyErr) && analysis != nil {
		problem := h.errorHandler.ErrorToProblem(err, r).
			WithExtension("summary", analysis.Summary).
			WithExtension("dropped", analysis.Dropped)
		h.errorHandler.RenderProblem(w, r, err, problem)
		return
	}
	h.errorHandler.HandleError(w, r, err)
}

// readUploads reads every file of the multipart UploadField.
func readUploads(r *http.Request) ([]services.Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, apierrors.InvalidRequestWithError(fmt.Errorf("expected a multipart/form-data body: %w", err))
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[UploadField]
	if len(headers) == 0 {
		return nil, apierrors.ErrValidation(UploadField, "at least one ledger file is required")
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		if !validation.IsLedgerFile(fh.Filename) {
			return nil, apierrors.ErrValidation(UploadField,
				fmt.Sprintf("%s is not a ledger file (expected %s)", fh.Filename, strings.Join(validation.LedgerExtensions, ", ")))
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, services.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apierrors.NewParsingError("could not open "+fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apierrors.NewParsingError("could not read "+fh.Filename, err)
	}
	return data, nil
}

// queryList returns every value of key, splitting comma-separated values.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// contentDisposition quotes an ASCII fallback and adds the RFC 5987 form
// for non-ASCII names.
func contentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	if fallback == filename {
		return fmt.Sprintf(`attachment; filename="%s"`, filename)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, url.PathEscape(filename))
}
