// Command lfas starts the address search HTTP server.
//
// Usage:
//
//	go run ./cmd/lfas
//	go run ./cmd/lfas -port 9090 -storage /var/lib/lfas
//
// Example requests:
//
//	# Index documents
//	curl -X POST http://localhost:8080/v1/lfas/documents \
//	  -H "Content-Type: application/json" \
//	  -d '{"records":[{"rua":"Travessa Mauriti","numero":"31","municipio":"Belém","estado":"PA","cep":"66095-000"}]}'
//
//	# Search
//	curl -X POST http://localhost:8080/v1/lfas/search \
//	  -H "Content-Type: application/json" \
//	  -d '{"query":{"numero":"31","estado":"pa"},"top_k":10,"blocking_k":1000}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rprado/lfas"
	"github.com/rprado/lfas/services/lfas/httpapi"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	storagePath := flag.String("storage", "", "Directory for persistent storage; empty uses an in-memory index")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdownTracing, err := initTracerProvider(context.Background())
	if err != nil {
		slog.Warn("Tracing disabled, provider setup failed", slog.String("error", err.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}

	engine, err := lfas.Open(lfas.Config{
		StoragePath: *storagePath,
		InMemory:    *storagePath == "",
	})
	if err != nil {
		slog.Error("Failed to open engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := httpapi.NewHandlers(engine)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("lfas"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	httpapi.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{Addr: addr, Handler: router}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-quit
		slog.Info("Shutting down lfas server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Graceful shutdown failed", slog.String("error", err.Error()))
		}
		if err := handlers.Close(ctx); err != nil {
			slog.Warn("Failed to close engine", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("Failed to shut down tracer provider", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Starting lfas server", slog.String("address", addr), slog.Bool("persistent", *storagePath != ""))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	<-done
}
