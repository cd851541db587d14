package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/plant-disease-api/internal/classifier"
	"github.com/Brownie44l1/plant-disease-api/internal/diagnosis"
	"github.com/Brownie44l1/plant-disease-api/internal/model"
	"github.com/Brownie44l1/plant-disease-api/internal/server/respond"
	"github.com/Brownie44l1/plant-disease-api/internal/treatment"
)

// multipartOverhead allows for boundaries and part headers on top of the
// file itself.
const multipartOverhead = 64 << 10

const modelUnavailableMessage = "Model not loaded. Please ensure the model file exists and is valid."

// Options controls upload validation. MaxTensorBytes caps the JSON body of
// tensor predictions; zero uses TensorBodyLimit for the default input size.
type Options struct {
	MaxUploadBytes    int64
	MaxTensorBytes    int64
	AllowedExtensions []string
}

// TensorBodyLimit is the largest JSON body accepted for a tensor of
// inputSize values: room for every value written out as a float32 literal
// plus a small envelope.
func TensorBodyLimit(inputSize int) int64 {
	return int64(inputSize)*24 + 1<<10
}

type Handler struct {
	service    *diagnosis.Service
	maxUpload  int64
	maxTensor  int64
	extensions map[string]struct{}
	extList    string
}

func NewHandler(service *diagnosis.Service, opts Options) *Handler {
	exts := make(map[string]struct{}, len(opts.AllowedExtensions))
	names := make([]string, 0, len(opts.AllowedExtensions))
	for _, e := range opts.AllowedExtensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e == "" {
			continue
		}
		if _, dup := exts[e]; !dup {
			names = append(names, e)
		}
		exts[e] = struct{}{}
	}
	maxTensor := opts.MaxTensorBytes
	if maxTensor <= 0 {
		maxTensor = TensorBodyLimit(model.DefaultImageSize * model.DefaultImageSize * 3)
	}
	return &Handler{
		service:    service,
		maxUpload:  opts.MaxUploadBytes,
		maxTensor:  maxTensor,
		extensions: exts,
		extList:    strings.Join(names, ", "),
	}
}

// PredictionResponse is the body of a successful prediction.
type PredictionResponse struct {
	Success       bool               `json:"success"`
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	TreatmentInfo treatment.Advice   `json:"treatment_info"`
	Predictions   map[string]float64 `json:"predictions,omitempty"`
}

// TensorRequest carries a preprocessed input tensor.
type TensorRequest struct {
	Image []float32 `json:"image" binding:"required"`
}

// DiseaseSummary is one entry of the disease listing.
type DiseaseSummary struct {
	Label     string `json:"label"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Condition string `json:"condition"`
	Healthy   bool   `json:"healthy"`
}

// DiseaseListResponse is the body of GET /api/diseases.
type DiseaseListResponse struct {
	Success  bool             `json:"success"`
	Count    int              `json:"count"`
	Diseases []DiseaseSummary `json:"diseases"`
}

// AdviceResponse is the body of GET /api/diseases/:label.
type AdviceResponse struct {
	Success       bool             `json:"success"`
	TreatmentInfo treatment.Advice `json:"treatment_info"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// RegisterRoutes mounts the API routes on r. predictMW runs before the
// prediction endpoints only.
func (h *Handler) RegisterRoutes(r gin.IRouter, predictMW ...gin.HandlerFunc) {
	r.GET("/health", h.Health)
	predict := r.Group("/predict", predictMW...)
	predict.POST("", h.Predict)
	predict.POST("/tensor", h.PredictTensor)
	r.GET("/diseases", h.ListDiseases)
	r.GET("/diseases/:label", h.GetDisease)
}

func (h *Handler) Health(c *gin.Context) {
	respond.OK(c, HealthResponse{Status: "healthy", ModelLoaded: h.service.ModelLoaded()})
}

// Predict classifies an uploaded image sent as multipart field "file" or
// "image".
func (h *Handler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	header, err := h.formFile(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "No file provided")
		return
	}
	if header.Filename == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "No file selected")
		return
	}
	if !h.allowed(header.Filename) {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "Invalid file type. Allowed types: "+h.extList)
		return
	}
	if header.Size > h.maxUpload {
		h.tooLarge(c)
		return
	}

	data, err := readUpload(header, h.maxUpload)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			h.tooLarge(c)
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "Failed to read uploaded file")
		return
	}

	slog.DebugContext(c.Request.Context(), "received upload",
		"filename", header.Filename,
		"bytes", len(data))

	result, err := h.service.Diagnose(c.Request.Context(), data, imageContentType(header))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, newPredictionResponse(result))
}

// PredictTensor classifies a preprocessed tensor sent as JSON.
func (h *Handler) PredictTensor(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxTensor)

	var req TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeTooLarge,
				fmt.Sprintf("Request body exceeds the %d byte tensor limit", h.maxTensor))
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "Invalid JSON")
		return
	}

	result, err := h.service.DiagnoseTensor(c.Request.Context(), req.Image)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, newPredictionResponse(result))
}

func (h *Handler) ListDiseases(c *gin.Context) {
	records := h.service.Advisor().Catalog().Records()
	out := make([]DiseaseSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, DiseaseSummary{
			Label:     rec.Label,
			Name:      rec.DisplayName(),
			Species:   rec.Species,
			Condition: rec.Condition,
			Healthy:   rec.Healthy,
		})
	}
	respond.OK(c, DiseaseListResponse{Success: true, Count: len(out), Diseases: out})
}

// GetDisease returns advice for a label. The optional confidence query
// parameter selects the severity tier and defaults to 1.
func (h *Handler) GetDisease(c *gin.Context) {
	confidence := 1.0
	if raw := c.Query("confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, fmt.Sprintf("confidence %q is not a number", raw))
			return
		}
		confidence = v
	}

	advice, err := h.service.Advice(c.Param("label"), confidence)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, AdviceResponse{Success: true, TreatmentInfo: advice})
}

func (h *Handler) formFile(c *gin.Context) (*multipart.FileHeader, error) {
	header, err := c.FormFile("file")
	if err == nil {
		return header, nil
	}
	if errors.Is(err, http.ErrMissingFile) {
		return c.FormFile("image")
	}
	return nil, err
}

func (h *Handler) allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	_, ok := h.extensions[ext]
	return ok
}

func (h *Handler) tooLarge(c *gin.Context) {
	respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeTooLarge,
		fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUpload))
}

// fail maps service errors to the error envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, classifier.ErrModelUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeModelUnavailable, modelUnavailableMessage)
	case errors.Is(err, classifier.ErrInvalidTensor), errors.Is(err, treatment.ErrInvalidConfidence):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error())
	case errors.Is(err, classifier.ErrInferenceFailure):
		respond.Error(c, http.StatusUnprocessableEntity, respond.CodeInferenceFailure, err.Error())
	case errors.Is(err, treatment.ErrUnknownDisease):
		respond.Error(c, http.StatusNotFound, respond.CodeUnknownDisease, "Disease class not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeInternal, "Request cancelled")
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Prediction failed")
	}
}

func newPredictionResponse(d diagnosis.Diagnosis) PredictionResponse {
	return PredictionResponse{
		Success:       true,
		Prediction:    d.Prediction.Label,
		Confidence:    d.Prediction.Confidence,
		TreatmentInfo: d.Advice,
		Predictions:   d.Prediction.Probabilities,
	}
}

var errUploadTooLarge = errors.New("upload too large")

func readUpload(header *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errUploadTooLarge
	}
	return data, nil
}

// imageContentType returns the part's declared type when it names an
// image; anything else is left to content sniffing.
func imageContentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if strings.HasPrefix(strings.ToLower(ct), "image/") {
		return ct
	}
	return ""
}
