package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/kart/internal/app"
	"github.com/xenking/kart/internal/catalog"
	"github.com/xenking/kart/internal/domain/auth"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/stock"
	"github.com/xenking/kart/internal/kv"
	"github.com/xenking/kart/internal/storage/keyspace"
)

type userJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Member   bool   `json:"member"`
	Points   int64  `json:"points"`
}

// demoUsers are seeded when no users file is given.
var demoUsers = []userJSON{
	{ID: "ann", Name: "Ann", Email: "ann@example.com", Password: "ann-password", Member: true, Points: 200},
	{ID: "bob", Name: "Bob", Email: "bob@example.com", Password: "bob-password", Member: true, Points: 0},
}

type options struct {
	storage    app.StorageConfig
	usersFile  string
	apiKey     string
	pepper     string
	stockDir   string
	resetStock bool
}

func main() {
	var opts options

	flag.StringVar(&opts.storage.Driver, "driver", app.DriverSQLite, "storage driver: redis, postgres or sqlite")
	flag.StringVar(&opts.storage.Namespace, "namespace", "kart", "key prefix shared by every stored record")
	flag.StringVar(&opts.storage.RedisURL, "redis-url", "", "Redis connection URL (or REDIS_URL env)")
	flag.StringVar(&opts.storage.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.storage.SQLitePath, "sqlite-path", "kart.db", "SQLite database file")
	flag.StringVar(&opts.usersFile, "users-file", "", "path to a users JSON file; demo users when empty")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.StringVar(&opts.stockDir, "stock-dir", "", "directory with stock-*.csv.gz shards")
	flag.BoolVar(&opts.resetStock, "reset-stock", false, "overwrite an existing stock ledger")
	flag.Parse()

	if opts.storage.RedisURL == "" {
		opts.storage.RedisURL = os.Getenv("REDIS_URL")
	}
	if opts.storage.DatabaseURL == "" {
		opts.storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if opts.pepper == "" {
		opts.pepper = os.Getenv("KART_API_KEY_PEPPER")
	}
	if opts.storage.Driver == app.DriverMemory {
		slog.Error("the memory driver does not outlive the seed process")
		os.Exit(1)
	}
	cfg := app.Config{Storage: opts.storage, Shop: app.ShopConfig{AccrualRate: "0"}}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid storage options", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts, cfg.Storage); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options, storage app.StorageConfig) error {
	slog.Info("opening store", slog.String("driver", storage.Driver))

	store, err := app.OpenStore(ctx, storage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := seedUsers(ctx, store, opts.usersFile); err != nil {
		return errors.Wrap(err, "seed users")
	}

	if opts.apiKey != "" {
		if err := seedAPIKey(ctx, store, opts.apiKey, opts.pepper); err != nil {
			return errors.Wrap(err, "seed api key")
		}
	} else {
		slog.Warn("no API key given, admin routes stay locked")
	}

	if err := seedStock(ctx, store, opts.stockDir, opts.resetStock); err != nil {
		return errors.Wrap(err, "seed stock")
	}

	return nil
}

func loadUsers(path string) ([]userJSON, error) {
	if path == "" {
		return demoUsers, nil
	}
	slog.Info("reading users file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read users file")
	}
	var users []userJSON
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, errors.Wrap(err, "parse users JSON")
	}
	return users, nil
}

func seedUsers(ctx context.Context, store kv.Store, path string) error {
	users, err := loadUsers(path)
	if err != nil {
		return err
	}
	repo := keyspace.NewUserRepository(store)

	slog.Info("upserting users", slog.Int("count", len(users)))

	for _, u := range users {
		if identity.IsGuestID(u.ID) {
			return errors.Errorf("invalid user id %q", u.ID)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return errors.Wrapf(err, "hash password of %s", u.ID)
		}
		if err := repo.Put(ctx, &identity.User{
			ID:           u.ID,
			Name:         u.Name,
			Email:        strings.ToLower(strings.TrimSpace(u.Email)),
			PasswordHash: string(hash),
			Member:       u.Member,
			Points:       u.Points,
			CreatedAt:    time.Now(),
		}); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}

		slog.Info("upserted user", slog.String("id", u.ID), slog.Int64("points", u.Points))
	}

	return nil
}

func seedAPIKey(ctx context.Context, store kv.Store, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := keyspace.NewAPIKeyRepository(store).Put(ctx, &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}

func seedStock(ctx context.Context, store kv.Store, dir string, reset bool) error {
	var sources []stock.Source
	if dir != "" {
		sources = append(sources, catalog.NewFileSource(dir))
	}
	sources = append(sources, catalog.Default().StockSource())

	svc := stock.NewService(keyspace.NewStockRepository(store))
	seed := svc.Initialize
	if reset {
		seed = svc.Reset
	}
	source, err := seed(ctx, sources...)
	if err != nil {
		return err
	}
	if source == "" {
		slog.Info("stock ledger already seeded, pass -reset-stock to overwrite")
		return nil
	}

	slog.Info("seeded stock ledger", slog.String("source", source))

	return nil
}
