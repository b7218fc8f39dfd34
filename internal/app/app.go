package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	msql "trakt-toggl-sync/internal/adapter/mysql"
	tg "trakt-toggl-sync/internal/adapter/toggl"
	tk "trakt-toggl-sync/internal/adapter/trakt"
	"trakt-toggl-sync/internal/config"
	"trakt-toggl-sync/internal/credstore"
	"trakt-toggl-sync/internal/migrate"
	"trakt-toggl-sync/internal/usecase"
)

// App wires adapters and use cases.
type App struct {
	log   *slog.Logger
	uc    *usecase.SyncUseCase
	store *credstore.Store
	trakt *tk.Client
	days  int
}

func New(log *slog.Logger, cfg *config.Config) (*App, error) {
	oauthConf := &oauth2.Config{
		ClientID:     cfg.Trakt.ClientID,
		ClientSecret: cfg.Trakt.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Trakt.BaseURL + "/oauth/authorize",
			TokenURL: cfg.Trakt.BaseURL + "/oauth/token",
		},
	}
	store := credstore.New(cfg.Trakt.TokenFile, oauthConf, log)
	traktClient := tk.NewClient(cfg.Trakt.BaseURL, cfg.Trakt.ClientID, cfg.Trakt.ClientSecret, store, log)
	togglClient := tg.NewClient(cfg.Toggl.BaseURL, cfg.Toggl.APIToken, cfg.Toggl.WorkspaceID, log)

	uc := &usecase.SyncUseCase{
		Log:             log,
		Trakt:           traktClient,
		Toggl:           togglClient,
		ProjectID:       cfg.Toggl.ProjectID,
		WorkspaceID:     cfg.Toggl.WorkspaceID,
		Tags:            cfg.Toggl.Tags,
		Granularity:     cfg.Sync.MatchGranularity,
		Tolerance:       cfg.Sync.MatchTolerance,
		MaxDuration:     cfg.Sync.MaxDuration,
		DefaultDuration: cfg.Sync.DefaultDuration,
	}

	// The ledger is opt-in; without a DSN the run is Toggl-only.
	if cfg.MySQL.DSN != "" {
		if err := migrate.Run(context.Background(), cfg.MySQL.DSN, log); err != nil {
			return nil, err
		}
		ledger, err := msql.NewLedger(context.Background(), cfg.MySQL.DSN, log)
		if err != nil {
			return nil, err
		}
		uc.Ledger = ledger
	}

	return &App{log: log, uc: uc, store: store, trakt: traktClient, days: cfg.Trakt.HistoryDays}, nil
}

// RunOnce executes one sync pass over [from, to].
func (a *App) RunOnce(ctx context.Context, from, to time.Time) (usecase.Result, error) {
	return a.uc.Run(ctx, from, to)
}

// Window returns the configured trailing sync window ending at now.
func (a *App) Window(now time.Time) (time.Time, time.Time) {
	return now.Add(-time.Duration(a.days) * 24 * time.Hour), now
}

// Login runs the device-code bootstrap and persists the resulting token.
// Interactive by nature; the sync path never calls it.
func (a *App) Login(ctx context.Context) error {
	dc, err := a.trakt.StartDeviceAuth(ctx)
	if err != nil {
		return err
	}
	a.log.Info("visit the verification URL and enter the code",
		slog.String("url", dc.VerificationURL),
		slog.String("code", dc.UserCode))
	tok, err := a.trakt.PollDeviceToken(ctx, dc)
	if err != nil {
		return err
	}
	if err := a.store.Save(tok); err != nil {
		return err
	}
	a.log.Info("authentication successful", slog.Time("expires_at", tok.Expiry))
	return nil
}
