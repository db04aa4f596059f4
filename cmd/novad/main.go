package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jcarbonnell/nova-sdk/internal/ledger"
	"github.com/jcarbonnell/nova-sdk/internal/storage/ipfs"
	"github.com/jcarbonnell/nova-sdk/internal/storage/sqlite"
	"github.com/jcarbonnell/nova-sdk/pkg/nova"
	"github.com/jcarbonnell/nova-sdk/pkg/server"
)

const blobCacheSize = 128

func main() {
	basePath := getEnv("DATA_PATH", "./data")

	levelStr := getEnv("LOG_LEVEL", "info")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	registrar := os.Getenv("NOVA_REGISTRAR")
	if registrar == "" {
		logger.Error("NOVA_REGISTRAR must be set to the registrar account id")
		os.Exit(1)
	}

	store, err := sqlite.Open(basePath)
	if err != nil {
		logger.Error("failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ledgerSvc := ledger.New(store, registrar, ledger.WithLogger(logger))

	pinner := ipfs.NewPinataClient(
		getEnv("PINATA_PIN_URL", ipfs.DefaultPinURL),
		os.Getenv("PINATA_API_KEY"),
		os.Getenv("PINATA_SECRET_KEY"),
	)
	primary := ipfs.NewGatewayClient(getEnv("IPFS_GATEWAY_URL", "https://gateway.pinata.cloud"))
	fallback := ipfs.NewGatewayClient(getEnv("IPFS_FALLBACK_GATEWAY_URL", "https://ipfs.io"))

	blobs := ipfs.NewContentStore(pinner, primary, fallback,
		ipfs.WithLogger(logger),
		ipfs.WithCache(blobCacheSize),
	)

	serviceOpts := []nova.ServiceOption{nova.WithLogger(logger)}
	if getEnv("PIN_VALIDATION", "false") == "true" {
		serviceOpts = append(serviceOpts, nova.WithPinValidation())
	}
	service := nova.NewService(ledgerSvc, blobs, serviceOpts...)

	apiHandler := server.NewHandler(ledgerSvc, service, server.WithLogger(logger))
	mux := apiHandler.Routes()

	addr := getEnv("LISTEN_ADDR", ":8080")

	fmt.Println("NOVA Service Startup")
	fmt.Println("===================================")
	fmt.Printf("Registrar: %s\n", registrar)
	fmt.Printf("Data Path: %s\n", basePath)
	fmt.Printf("Primary Gateway: %s\n", primary.URL())
	fmt.Printf("Fallback Gateway: %s\n", fallback.URL())
	fmt.Println()
	fmt.Println("Ledger API (authenticated via X-Nova-Principal):")
	fmt.Printf("  POST   http://localhost%s/groups\n", addr)
	fmt.Printf("  POST   http://localhost%s/groups/{group}/members\n", addr)
	fmt.Printf("  DELETE http://localhost%s/groups/{group}/members/{user}\n", addr)
	fmt.Printf("  GET    http://localhost%s/groups/{group}/authorized/{user}\n", addr)
	fmt.Printf("  PUT    http://localhost%s/groups/{group}/key\n", addr)
	fmt.Printf("  GET    http://localhost%s/groups/{group}/key\n", addr)
	fmt.Printf("  GET    http://localhost%s/groups/{group}/transactions\n", addr)
	fmt.Printf("  GET    http://localhost%s/groups/{group}/tree\n", addr)
	fmt.Printf("  GET    http://localhost%s/groups/{group}/verify\n", addr)
	fmt.Println()
	fmt.Println("File API:")
	fmt.Printf("  POST   http://localhost%s/groups/{group}/files\n", addr)
	fmt.Printf("  GET    http://localhost%s/groups/{group}/files/{cid}\n", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
