package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/proving"
	"github.com/base-org/groth16-proof-service/proving/storage"
	api "github.com/base-org/groth16-proof-service/rpc"
)

const Version = "v0.1.0"

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	app := newApp()
	err := app.Run(os.Args)
	if err != nil {
		log.Crit("Application failed", "error", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Flags = append(append([]cli.Flag{}, Flags...), ServeFlags...)
	app.Version = Version
	app.Name = "proof-service"
	app.Description = "Groth16 (BN254) proof generation and verification service"
	app.Commands = Commands
	app.Action = curryMain(Version)
	return app
}

func curryMain(version string) func(ctx *cli.Context) error {
	return func(ctx *cli.Context) error {
		return Main(version, ctx)
	}
}

func newStorage(cliCtx *cli.Context) (storage.Storage, error) {
	if bucket := cliCtx.String(S3BucketFlag.Name); bucket != "" {
		log.Info("Using S3 storage", "bucket", bucket, "region", cliCtx.String(S3RegionFlag.Name))
		return storage.NewS3Storage(cliCtx.Context, bucket, cliCtx.String(S3RegionFlag.Name))
	}
	path, err := filepath.Abs(cliCtx.String(KeyPathFlag.Name))
	if err != nil {
		return nil, err
	}
	log.Info("Using local storage", "path", path)
	return storage.NewFileStorage(path), nil
}

func newEngine(cliCtx *cli.Context) (proving.Engine, []proving.KeyStoreOption, error) {
	switch name := cliCtx.String(EngineFlag.Name); name {
	case "go":
		var opts []groth16.Option
		if n := cliCtx.Int(ProverTasksFlag.Name); n > 0 {
			opts = append(opts, groth16.WithNbTasks(n))
		}
		return proving.NewGoEngine(opts...), nil, nil
	case "rapidsnark":
		engine, err := proving.NewNativeEngine()
		if err != nil {
			return nil, nil, err
		}
		return engine, []proving.KeyStoreOption{proving.WithRawKeys()}, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q", name)
	}
}

func newService(cliCtx *cli.Context, reg prometheus.Registerer) (*proving.Service, error) {
	store, err := newStorage(cliCtx)
	if err != nil {
		return nil, err
	}
	engine, opts, err := newEngine(cliCtx)
	if err != nil {
		return nil, err
	}
	metrics := proving.NewMetrics(reg)
	keys := proving.NewKeyStore(store, append(opts, proving.WithKeyStoreMetrics(metrics))...)
	return proving.NewService(keys, engine, proving.Config{
		MaxConcurrentProofs:   cliCtx.Int64(MaxConcurrentProofsFlag.Name),
		VerifyingKeyCacheSize: cliCtx.Int(VerifyingKeyCacheFlag.Name),
	}, metrics)
}

// preload loads every declared circuit concurrently and fails on the first
// error.
func preload(ctx context.Context, service *proving.Service, decls []circuits.Metadata) error {
	result := make(chan proving.LoadKeyResult, len(decls))
	for _, c := range decls {
		service.Keys().LoadAsync(ctx, c.Id, c.Path, result)
	}
	var errs []error
	for range decls {
		if r := <-result; r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func runServer(apis []rpc.API, metrics http.Handler, portAddr string) (*http.Server, error) {
	handler := rpc.NewServer()

	if err := node.RegisterApis(apis, nil, handler); err != nil {
		return nil, fmt.Errorf("error registering APIs: %w", err)
	}

	serv := &http.Server{Addr: portAddr, Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/_health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
			metrics.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		handler.ServeHTTP(w, r)
	})}
	log.Info("Starting HTTP server", "address", portAddr)
	go func() {
		err := serv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
		}
	}()

	return serv, nil
}

func Main(version string, cliCtx *cli.Context) error {
	log.Info("Starting proof-service", "version", version)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := newService(cliCtx, registry)
	if err != nil {
		return err
	}
	decls, err := circuits.ParseAll(cliCtx.StringSlice(CircuitsFlag.Name))
	if err != nil {
		return err
	}
	if err := preload(cliCtx.Context, service, decls); err != nil {
		return fmt.Errorf("preloading circuits: %w", err)
	}

	groth16API := rpc.API{
		Namespace: api.Namespace,
		Service:   api.NewGroth16(service),
	}
	metrics := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	server, err := runServer([]rpc.API{groth16API}, metrics, fmt.Sprintf(":%d", cliCtx.Int(PortFlag.Name)))
	if err != nil {
		return err
	}

	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-interruptChannel

	log.Info("Shutting down")
	return server.Shutdown(context.Background())
}
