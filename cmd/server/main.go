package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/melanoma-api/internal/config"
	"github.com/Brownie44l1/melanoma-api/internal/handlers"
	"github.com/Brownie44l1/melanoma-api/internal/metrics"
	"github.com/Brownie44l1/melanoma-api/internal/model"
)

func main() {
	if err := newServerCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "melanoma-api",
		Short: "Serve melanoma/nevus predictions for skin-lesion images",
		Long: `melanoma-api loads an ONNX melanoma/nevus classifier and serves it over HTTP.

POST /predict takes a multipart form with an "image" file and the optional
"sex", "age" and "anatom_site" fields.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file")
	config.Default().AddFlags(cmd.Flags())

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.Flags().AddGoFlagSet(klogFlags)

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	defer klog.Flush()

	klog.InfoS("Loading model", "model", cfg.ModelPath, "metadata", cfg.MetadataPath)
	modelServer, err := model.NewServer(model.Options{
		ModelPath:    cfg.ModelPath,
		MetadataPath: cfg.MetadataPath,
		LibraryPath:  cfg.ORTLibraryPath,
	})
	if err != nil {
		klog.ErrorS(err, "Failed to initialize model server")
		return err
	}
	defer modelServer.Close()

	handler := handlers.NewHandler(modelServer, modelServer.Metadata, metrics.New(), handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxImagePixels: cfg.MaxImagePixels,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Server starting", "port", cfg.Port, "classes", modelServer.Metadata.Classes,
			"sites", modelServer.Metadata.AnatomSiteCategories)
		klog.Info("Endpoints: GET / | GET /health | GET /metrics | POST /predict")
		klog.Infof("Upload test: curl -X POST -F image=@lesion.jpg -F sex=female -F age=52 -F anatom_site=torso http://localhost:%s/predict", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			klog.ErrorS(err, "Server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	klog.InfoS("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "Graceful shutdown failed")
		return err
	}
	return nil
}
