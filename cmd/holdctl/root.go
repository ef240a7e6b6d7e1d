package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wolfman30/receptionist-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/receptionist-scheduler/internal/calendar"
	appconfig "github.com/wolfman30/receptionist-scheduler/internal/config"
	"github.com/wolfman30/receptionist-scheduler/internal/holds"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// app carries lazily built dependencies shared by the subcommands.
type app struct {
	cfg    *appconfig.Config
	logger *logging.Logger
	out    io.Writer
	now    func() time.Time

	gateway calendar.Gateway
	store   holds.Store
	pool    *pgxpool.Pool
}

func newApp(out io.Writer) *app {
	cfg := appconfig.Load()
	return &app{cfg: cfg, logger: logging.New(cfg.LogLevel), out: out, now: time.Now}
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) calendar(ctx context.Context) (calendar.Gateway, error) {
	if a.gateway == nil {
		gw, err := bootstrap.BuildCalendar(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.gateway = gw
	}
	return a.gateway, nil
}

func (a *app) holdStore(ctx context.Context) (holds.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if strings.TrimSpace(a.cfg.DatabaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.store = holds.NewPostgresStore(pool)
	return a.store, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "holdctl",
		Short: "Inspect calendar availability and tentative holds",
		Long: `holdctl is the operator tool for the receptionist scheduler.

It previews the slots a caller would be offered, lists the holds of a
proposal group and expires stale tentative holds on demand.`,
		SilenceUsage: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.out)

	root.AddCommand(newSlotsCmd(a))
	root.AddCommand(newGroupCmd(a))
	root.AddCommand(newHoldCmd(a))
	root.AddCommand(newReapCmd(a))
	return root
}
