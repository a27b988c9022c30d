package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"
)

type Options struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath points at the onnxruntime shared library. Empty keeps
	// the platform default lookup.
	LibraryPath  string
}

// Server runs the melanoma/nevus model through a single ONNX Runtime
// session. The input and output tensors are bound once, so Predict
// serialises calls.
type Server struct {
	mu       sync.Mutex
	closed   bool
	session  *ort.AdvancedSession
	Metadata Metadata

	imageTensor  *ort.Tensor[float32]
	sexTensor    *ort.Tensor[float32]
	siteTensor   *ort.Tensor[float32]
	ageTensor    *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(opts Options) (*Server, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	s := &Server{Metadata: metadata}
	if err := s.allocate(); err != nil {
		s.Close()
		return nil, err
	}

	s.session, err = ort.NewAdvancedSession(opts.ModelPath,
		[]string{metadata.Inputs.Image, metadata.Inputs.Sex, metadata.Inputs.AnatomSite, metadata.Inputs.Age},
		[]string{metadata.Output},
		[]ort.ArbitraryTensor{s.imageTensor, s.sexTensor, s.siteTensor, s.ageTensor},
		[]ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	klog.InfoS("Model loaded", "model", opts.ModelPath, "imageShape", metadata.ImageShape(),
		"classes", metadata.Classes)
	return s, nil
}

func (s *Server) allocate() error {
	var err error
	if s.imageTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.ImageShape()...)); err != nil {
		return fmt.Errorf("failed to create image tensor: %w", err)
	}

	scalar := ort.NewShape(1, 1)
	if s.sexTensor, err = ort.NewEmptyTensor[float32](scalar); err != nil {
		return fmt.Errorf("failed to create sex tensor: %w", err)
	}
	if s.siteTensor, err = ort.NewEmptyTensor[float32](scalar); err != nil {
		return fmt.Errorf("failed to create anatomical site tensor: %w", err)
	}
	if s.ageTensor, err = ort.NewEmptyTensor[float32](scalar); err != nil {
		return fmt.Errorf("failed to create age tensor: %w", err)
	}

	if s.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(s.Metadata.Classes)))); err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	return nil
}

// Predict runs one inference and returns the class probabilities in
// Metadata.Classes order.
func (s *Server) Predict(ctx context.Context, pixels []float32, features Features) ([]float32, error) {
	if len(pixels) != s.Metadata.ImageLen() {
		return nil, fmt.Errorf("%w: expected %d image values, got %d", ErrInvalidInput, s.Metadata.ImageLen(), len(pixels))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	// The session cannot be interrupted once it runs, so only a request
	// cancelled while waiting for the lock is skipped.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(s.imageTensor.GetData(), pixels)
	s.sexTensor.GetData()[0] = features.Sex
	s.siteTensor.GetData()[0] = features.AnatomSite
	s.ageTensor.GetData()[0] = features.Age

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	return append([]float32(nil), s.outputTensor.GetData()...), nil
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	if s.session != nil {
		s.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{s.imageTensor, s.sexTensor, s.siteTensor, s.ageTensor, s.outputTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	ort.DestroyEnvironment()
}
