package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/punchamoorthee/coopledger/internal/config"
	"github.com/punchamoorthee/coopledger/internal/domain"
	"github.com/punchamoorthee/coopledger/internal/service"
	"github.com/punchamoorthee/coopledger/internal/store"
)

// Fixture describes accounts to open and the balances they start with.
type Fixture struct {
	Actor    int64            `yaml:"actor"`
	Accounts []FixtureAccount `yaml:"accounts"`
}

type FixtureAccount struct {
	Type           string `yaml:"type"`
	Number         string `yaml:"number"`
	Name           string `yaml:"name"`
	BankName       string `yaml:"bank_name"`
	OpeningBalance string `yaml:"opening_balance"`
}

func main() {
	fixturePath := flag.String("fixture", "", "YAML fixture with accounts and opening balances")
	bulk := flag.Int("bulk", 0, "create N empty member accounts with COPY (postgres only)")
	prefix := flag.String("prefix", "BENCH", "account number prefix for -bulk")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	ctx := context.Background()

	ledgerStore, err := cfg.OpenStore(ctx)
	if err != nil {
		logger.Error("open ledger store", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledgerStore.Close()

	if *bulk > 0 {
		pg, ok := ledgerStore.(*store.PostgresStore)
		if !ok {
			logger.Error("-bulk needs STORE_DRIVER=postgres")
			os.Exit(1)
		}
		n, err := pg.BulkCreateMemberAccounts(ctx, *prefix, *bulk)
		if err != nil {
			logger.Error("bulk insert failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("seeded member accounts", slog.Int64("count", n))
	}

	if *fixturePath != "" {
		fx, err := loadFixture(*fixturePath)
		if err != nil {
			logger.Error("load fixture", slog.Any("error", err))
			os.Exit(1)
		}
		ledger := service.New(ledgerStore, service.WithLogger(logger))
		if err := seed(ctx, ledger, fx, logger); err != nil {
			logger.Error("seed fixture", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func loadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if fx.Actor <= 0 {
		fx.Actor = 1
	}
	return &fx, nil
}

// seed opens every fixture account and posts its opening balance. Accounts whose number is already
// taken are skipped, so the seeder can be rerun.
func seed(ctx context.Context, ledger *service.Service, fx *Fixture, logger *slog.Logger) error {
	for _, a := range fx.Accounts {
		acct, err := ledger.OpenAccount(ctx, domain.NewAccount{
			Kind:     domain.AccountKind(a.Type),
			Number:   a.Number,
			Name:     a.Name,
			BankName: a.BankName,
		})
		if errors.Is(err, domain.ErrAccountExists) {
			logger.Info("account exists, skipping", slog.String("number", a.Number))
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", a.Number, err)
		}
		if a.OpeningBalance == "" {
			continue
		}
		amount, err := decimal.NewFromString(a.OpeningBalance)
		if err != nil {
			return fmt.Errorf("opening balance of %s: %w", a.Number, err)
		}
		typ := domain.TypeSaving
		if acct.Ref.Kind == domain.KindCooperative {
			typ = domain.TypeJournalEntry
		}
		if _, err := ledger.Post(ctx, domain.PostingRequest{
			Account:         acct.Ref,
			Amount:          amount,
			Type:            typ,
			Description:     "Opening balance",
			ReferenceNumber: "OPEN-" + a.Number,
			CreatedBy:       fx.Actor,
		}); err != nil {
			return fmt.Errorf("opening balance of %s: %w", a.Number, err)
		}
	}
	logger.Info("fixture seeded", slog.Int("accounts", len(fx.Accounts)))
	return nil
}
