package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"vestchain/config"
	"vestchain/core/events"
	"vestchain/core/state"
	"vestchain/crypto"
	"vestchain/native/accrual"
	"vestchain/observability/logging"
	"vestchain/rpc"
	"vestchain/storage"
)

func main() {
	configFile := flag.String("config", "", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VEST_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Env
	}
	logger := logging.Setup("vestd", env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	params, err := buildParams(cfg)
	if err != nil {
		logger.Error("Invalid ledger parameters", slog.Any("error", err))
		os.Exit(1)
	}
	if err := registerAssets(manager, cfg); err != nil {
		logger.Error("Failed to register assets", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := accrual.NewEngine(manager, manager, events.NewLogEmitter(logger), params)
	if err != nil {
		logger.Error("Failed to construct accrual engine", slog.Any("error", err))
		os.Exit(1)
	}

	if err := seedSchedule(engine, cfg, logger); err != nil {
		logger.Error("Failed to seed schedule", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, manager, clockwork.NewRealClock(), logger)
	logger.Info("vestd started", "rpc", cfg.RPCAddress, "data_dir", cfg.DataDir)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func buildParams(cfg *config.Config) (accrual.Params, error) {
	if strings.TrimSpace(cfg.TreasuryAddress) == "" {
		return accrual.Params{}, fmt.Errorf("TreasuryAddress is required")
	}
	addr, err := crypto.DecodeAddress(cfg.TreasuryAddress)
	if err != nil {
		return accrual.Params{}, fmt.Errorf("TreasuryAddress: %w", err)
	}
	var treasury [20]byte
	copy(treasury[:], addr.Bytes())

	quantum := new(big.Int)
	if trimmed := strings.TrimSpace(cfg.PayoutQuantum); trimmed != "" {
		if _, ok := quantum.SetString(trimmed, 10); !ok {
			return accrual.Params{}, fmt.Errorf("PayoutQuantum: invalid integer %q", cfg.PayoutQuantum)
		}
	}

	params := accrual.Params{
		DayLength:      cfg.DayLengthSeconds,
		BuybackRateBps: cfg.BuybackRateBps,
		PayoutQuantum:  quantum,
		RewardToken:    cfg.RewardToken,
		PaymentToken:   cfg.PaymentToken,
		Treasury:       treasury,
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		return accrual.Params{}, err
	}
	return params, nil
}

func registerAssets(manager *state.Manager, cfg *config.Config) error {
	if err := manager.RegisterToken(cfg.RewardToken, "Vest Reward", 18); err != nil {
		return err
	}
	if err := manager.RegisterToken(cfg.PaymentToken, "Vest Payment", 18); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.AdminAddress) != "" {
		admin, err := crypto.DecodeAddress(cfg.AdminAddress)
		if err != nil {
			return fmt.Errorf("AdminAddress: %w", err)
		}
		var adminBytes [20]byte
		copy(adminBytes[:], admin.Bytes())
		if err := manager.SetRole(state.RoleAccrualAdmin, adminBytes); err != nil {
			return err
		}
	}
	return nil
}

// seedSchedule initializes the accrual schedule from the configured epoch
// file on first boot. A schedule persisted by a previous run wins.
func seedSchedule(engine *accrual.Engine, cfg *config.Config, logger *slog.Logger) error {
	if strings.TrimSpace(cfg.ScheduleFile) == "" {
		return nil
	}
	epochs, err := accrual.LoadScheduleFile(cfg.ScheduleFile)
	if err != nil {
		return err
	}
	start := time.Now()
	if cfg.ScheduleStart > 0 {
		start = time.Unix(cfg.ScheduleStart, 0)
	}
	err = engine.InitializeSchedule(start, epochs)
	if errors.Is(err, accrual.ErrScheduleAlreadyInitialized) {
		logger.Info("schedule already initialized, skipping seed file")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("schedule initialized from file", "path", cfg.ScheduleFile, "epochs", len(epochs))
	return nil
}
