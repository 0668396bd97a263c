package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"stakepool/config"
	"stakepool/core/events"
	"stakepool/native/staking"
	"stakepool/native/token"
	"stakepool/observability/logging"
	"stakepool/rpc"
	"stakepool/state"
	"stakepool/storage"
)

const authTokenEnv = "STAKEPOOL_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	var logOut io.Writer = os.Stdout
	if strings.TrimSpace(cfg.LogFile) != "" {
		logOut = logging.RotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)
	}
	logger := logging.Setup("stakepoold", cfg.Environment, logOut)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db, logger)
	if err != nil {
		logger.Error("Failed to assemble staking engine", slog.Any("error", err))
		os.Exit(1)
	}

	authToken := strings.TrimSpace(os.Getenv(authTokenEnv))
	if authToken == "" {
		logger.Warn("No auth token configured; privileged RPC methods are disabled",
			slog.String("env", authTokenEnv))
	}

	srv := rpc.NewServer(engine, logger, rpc.ServerConfig{
		AuthToken:          authToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
	})
	server := &http.Server{
		Addr:         cfg.RPCAddress,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		logger.Error("Failed to bind RPC address", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		logger.Info("RPC server listening", slog.String("address", listener.Addr().String()))
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("RPC server stopped", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("stakepoold stopped")
}

// buildEngine assembles the staking engine over persistent state and the
// in-process asset ledgers, initializing the pool on first boot.
func buildEngine(cfg *config.Config, db storage.Database, logger *slog.Logger) (*staking.Engine, error) {
	manager := state.NewManager(db)

	ledger := token.NewLedger(cfg.AssetSymbol)
	native := token.NewLedger("NATIVE")
	if err := seedLedger(ledger, cfg); err != nil {
		return nil, fmt.Errorf("seed asset ledger: %w", err)
	}

	engine := staking.NewEngine(cfg.Owner(), cfg.Pool())
	engine.SetState(manager)
	engine.SetEmitter(logEmitter{logger: logger})
	engine.RegisterPort(cfg.Asset(), ledger)
	engine.RegisterPort(staking.NativeAsset, native)

	minimum, err := cfg.MinimumStakeAmount()
	if err != nil {
		return nil, err
	}
	rate, err := cfg.DailyYieldRate()
	if err != nil {
		return nil, err
	}
	switch err := engine.Initialize(cfg.Asset(), minimum, rate); {
	case err == nil:
		logger.Info("Pool initialized",
			slog.String("asset", cfg.Asset().Hex()),
			slog.String("minimumStake", minimum.String()),
			slog.String("dailyYieldRateScaled", rate.String()))
	case errors.Is(err, staking.ErrAlreadyInitialized):
		logger.Info("Pool state restored from disk")
	default:
		return nil, err
	}
	return engine, nil
}

// seedLedger mints the configured genesis balances. The asset ledger lives
// in process, so balances are reconstituted on every boot; each allocation
// also pre-approves the pool address so deposits and charges can pull funds.
func seedLedger(ledger *token.Ledger, cfg *config.Config) error {
	for _, alloc := range cfg.Genesis {
		balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
		if !ok || balance.Sign() <= 0 {
			return fmt.Errorf("invalid genesis balance %q", alloc.Balance)
		}
		addr := strings.TrimSpace(alloc.Address)
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid genesis address %q", alloc.Address)
		}
		holder := common.HexToAddress(addr)
		if err := ledger.Mint(holder, balance); err != nil {
			return err
		}
		if err := ledger.Approve(holder, cfg.Pool(), balance); err != nil {
			return err
		}
	}
	return nil
}

// logEmitter forwards ledger events to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(p events.Payload) {
	if p == nil {
		return
	}
	evt := p.Event()
	if evt == nil {
		return
	}
	attrs := make([]any, 0, len(evt.Attributes)*2+2)
	attrs = append(attrs, slog.String("event", evt.Type))
	for key, value := range evt.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.logger.Info("Ledger event", attrs...)
}
