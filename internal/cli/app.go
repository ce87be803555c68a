package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/listing"
	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/dedup"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

// app holds what every command needs: configuration and a logger
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	sync   func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, sync, err := logging.NewLogger(cfg.Logging())
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, sync: sync}, nil
}

func (a *app) close() {
	_ = a.sync()
}

func (a *app) connectDatabase(ctx context.Context) (*database.DatabaseInstance, error) {
	return database.Connect(ctx, a.cfg.Database(), a.logger)
}

func (a *app) migrate(db *database.DatabaseInstance, migration *database.MigrationConfig) error {
	return database.NewMigrationService(a.logger, migration).MigratePostgres(db, a.cfg.DatabaseName)
}

func (a *app) newDedupService(db database.DB, cache blocking.CandidateCache) (*dedup.Service, error) {
	var opts []dedup.Option
	if cache != nil {
		opts = append(opts, dedup.WithCandidateCache(cache))
	}
	return dedup.NewService(a.logger, listing.NewRepository(db, a.logger), a.cfg.Dedup(), opts...)
}

func (a *app) newMatchingService(db database.DB) (*matching.Service, error) {
	calculator, err := scoring.NewCalculator(a.cfg.Scoring())
	if err != nil {
		return nil, err
	}
	return matching.NewService(a.logger, listing.NewRepository(db, a.logger), calculator, a.cfg.Matching()), nil
}

func readJSONFile(path string, dest any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
