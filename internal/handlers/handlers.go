package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/Brownie44l1/melanoma-api/internal/metrics"
	"github.com/Brownie44l1/melanoma-api/internal/model"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	// DefaultMaxImagePixels bounds width*height before an upload is decoded.
	DefaultMaxImagePixels = 40_000_000
)

// Predictor runs the model on a preprocessed image and encoded metadata and
// returns the class probabilities, melanoma first.
type Predictor interface {
	Predict(ctx context.Context, pixels []float32, features model.Features) ([]float32, error)
}

// Options bounds what a single prediction request may cost. Zero values
// select the defaults.
type Options struct {
	MaxUploadBytes int64
	MaxImagePixels int64
}

type Handler struct {
	predictor Predictor
	metadata  model.Metadata
	metrics   *metrics.Metrics
	opts      Options
}

func NewHandler(predictor Predictor, metadata model.Metadata, m *metrics.Metrics, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = DefaultMaxImagePixels
	}
	return &Handler{
		predictor: predictor,
		metadata:  metadata,
		metrics:   m,
		opts:      opts,
	}
}

// Routes wires every endpoint, instrumented and wrapped in the middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", h.metrics.InstrumentHandler("home", http.HandlerFunc(h.Home)))
	mux.Handle("/health", h.metrics.InstrumentHandler("health", http.HandlerFunc(h.Health)))
	mux.Handle("/predict", h.metrics.InstrumentHandler("predict", http.HandlerFunc(h.Predict)))
	mux.Handle("/metrics", h.metrics.Handler())

	return Chain(mux, RequestID, AccessLog, Recover, CORS)
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, map[string]string{"MNI": "project"}, http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID := RequestIDFrom(r.Context())

	if r.ContentLength > h.opts.MaxUploadBytes {
		respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		klog.InfoS("No image file provided", "requestID", reqID)
		respondError(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Only the multipart body counts; query parameters are ignored.
	fields := r.MultipartForm.Value
	klog.InfoS("Processing request", "requestID", reqID, "file", header.Filename, "size", header.Size,
		"sex", fields[model.FieldSex], "age", fields[model.FieldAge], "site", fields[model.FieldAnatomSite])

	info, err := model.ParseClinicalInfo(fields, h.metadata)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			klog.InfoS("Invalid clinical info", "requestID", reqID, "reason", verr.Message)
			respondError(w, verr.Message, http.StatusBadRequest)
			return
		}
		klog.ErrorS(err, "Unexpected validation failure", "requestID", reqID)
		respondError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		klog.InfoS("Undecodable image header", "requestID", reqID, "err", err)
		respondError(w, "Invalid image format. Supported: JPEG, PNG, GIF", http.StatusBadRequest)
		return
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > h.opts.MaxImagePixels {
		klog.InfoS("Image dimensions over limit", "requestID", reqID,
			"width", cfg.Width, "height", cfg.Height, "limit", h.opts.MaxImagePixels)
		respondError(w, fmt.Sprintf("Image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, h.opts.MaxImagePixels),
			http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		klog.ErrorS(err, "Failed to rewind upload", "requestID", reqID)
		respondError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	img, format, err := image.Decode(file)
	if err != nil {
		klog.InfoS("Undecodable image", "requestID", reqID, "err", err)
		respondError(w, "Invalid image format. Supported: JPEG, PNG, GIF", http.StatusBadRequest)
		return
	}
	klog.V(2).InfoS("Decoded image", "requestID", reqID, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	pixels := model.PreprocessImage(img, h.metadata)
	features := model.Encode(info, h.metadata)

	start := time.Now()
	probs, err := h.predictor.Predict(r.Context(), pixels, features)
	h.metrics.ObserveInference(time.Since(start))
	if err != nil {
		klog.ErrorS(err, "Prediction error", "requestID", reqID)
		respondError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	result, err := model.NewResponse(probs)
	if err != nil {
		klog.ErrorS(err, "Unexpected model output", "requestID", reqID)
		respondError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}
	h.metrics.ObservePrediction(model.Level(result.Diagnosis.Melanoma))

	klog.InfoS("Prediction results", "requestID", reqID,
		"melanoma", result.Diagnosis.Melanoma, "nevus", result.Diagnosis.Nevus,
		"interpretation", result.Interpretation)

	respondJSON(w, result, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		klog.ErrorS(err, "Failed to write response")
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
