// Command seed loads demo companies, users and one month of consumption
// records into a development database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marmitas/backoffice/internal/app"
	"github.com/marmitas/backoffice/internal/auth"
	"github.com/marmitas/backoffice/internal/companies"
	"github.com/marmitas/backoffice/internal/consumption"
	"github.com/marmitas/backoffice/internal/platform/db"
	"github.com/marmitas/backoffice/internal/pricing"
	"github.com/marmitas/backoffice/internal/shared"
)

var demoCompanies = []companies.Input{
	{Name: "Construtora Alfa", Responsible: "Maria Souza", Email: "financeiro@alfa.example", PaymentMethod: companies.PaymentPix},
	{Name: "Oficina Beta", Responsible: "João Lima", Email: "joao@beta.example", PaymentMethod: companies.PaymentBoleto, DiscountPercent: decimal.NewFromInt(5)},
	{Name: "Mercado Gama", Responsible: "Ana Prado", PaymentMethod: companies.PaymentTransferencia},
}

var demoUsers = []auth.RegisterInput{
	{Email: "gerente@marmitas.local", Name: "Gerente", Role: "manager", Password: "gerente123"},
	{Email: "operador@marmitas.local", Name: "Operador", Role: "operator", Password: "operador123"},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "seed")
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := run(ctx, cfg, logger, pool); err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete")
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, q db.Querier) error {
	authService := auth.NewService(auth.NewRepository(q), logger)
	if cfg.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	for _, u := range demoUsers {
		if _, err := authService.Register(ctx, u); err != nil && !errors.Is(err, shared.ErrConflict) {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
	}

	companyService := companies.NewService(companies.NewRepository(q), logger)
	existing, err := companyService.List(ctx, companies.Filter{})
	if err != nil {
		return err
	}
	byName := make(map[string]companies.Company, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}
	var ids []int64
	for _, in := range demoCompanies {
		if c, ok := byName[in.Name]; ok {
			ids = append(ids, c.ID)
			continue
		}
		c, err := companyService.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("company %s: %w", in.Name, err)
		}
		ids = append(ids, c.ID)
	}

	records := consumption.NewService(
		consumption.NewRepository(q),
		companyService,
		pricing.NewService(pricing.NewRepository(q), nil, logger),
		logger,
	)
	now := time.Now()
	start, end := shared.MonthRange(shared.PreviousMonth(int(now.Month()), now.Year(), 1))
	seeded, err := records.List(ctx, consumption.Filter{From: start, To: end})
	if err != nil {
		return err
	}
	if len(seeded) > 0 {
		logger.Info("consumption already seeded", slog.String("month", start.Format("2006-01")))
		return nil
	}
	sizes := []pricing.Size{pricing.SizeSmall, pricing.SizeMedium, pricing.SizeLarge}
	created := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Sunday {
			continue
		}
		for i, id := range ids {
			in := consumption.CreateInput{
				CompanyID: id,
				Date:      day.Format(time.DateOnly),
				Size:      string(sizes[(day.Day()+i)%len(sizes)]),
				Quantity:  1 + (day.Day()*(i+1))%4,
			}
			if _, err := records.CreateRecord(ctx, in); err != nil {
				return fmt.Errorf("record %s company %d: %w", in.Date, id, err)
			}
			created++
		}
	}
	logger.Info("seeded consumption", slog.Int("records", created), slog.String("month", start.Format("2006-01")))
	return nil
}
