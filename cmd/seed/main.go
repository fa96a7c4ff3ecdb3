// Command seed creates base roles and the admin account.
// It is idempotent: existing roles, users and links are kept as is.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/courseauth/internal/db"
	"github.com/nkiryanov/courseauth/internal/logger"
	"github.com/nkiryanov/courseauth/internal/repository"
	"github.com/nkiryanov/courseauth/internal/repository/postgres"
	"github.com/nkiryanov/courseauth/internal/service/user"
)

const defaultAdminEmail = "admin@example.com"

var baseRoles = []struct {
	Name        string
	Description string
}{
	{"admin", "Platform administrator"},
	{"instructor", "Creates and manages courses"},
	{"student", "Enrolls in courses"},
}

type config struct {
	DatabaseDSN   string
	AdminEmail    string
	AdminPassword string
	LogLevel      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(getenv func(string) string, getwd func() (string, error), args []string) (config, error) {
	c := config{AdminEmail: defaultAdminEmail, LogLevel: logger.LevelInfo}

	wd, err := getwd()
	if err != nil {
		return c, err
	}
	dotenv, err := godotenv.Read(filepath.Join(wd, ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, err
	}

	for key, o := range map[string]*string{
		"DATABASE_URI":   &c.DatabaseDSN,
		"ADMIN_EMAIL":    &c.AdminEmail,
		"ADMIN_PASSWORD": &c.AdminPassword,
		"LOG_LEVEL":      &c.LogLevel,
	} {
		if v := dotenv[key]; v != "" {
			*o = v
		}
		if v := getenv(key); v != "" {
			*o = v
		}
	}

	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AdminEmail, "admin-email", c.AdminEmail, "Admin email")
	fs.StringVar(&c.AdminPassword, "admin-password", c.AdminPassword, "Admin password")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return c, err
	}

	switch {
	case c.DatabaseDSN == "":
		return c, errors.New("DATABASE_URI is not set")
	case c.AdminPassword == "":
		return c, errors.New("ADMIN_PASSWORD is not set")
	}

	return c, nil
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c, err := loadConfig(getenv, getwd, args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	l, err := logger.NewTextLogger(c.LogLevel)
	if err != nil {
		return err
	}

	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	storage := postgres.NewStorage(pool)

	return storage.InTx(ctx, func(tx repository.Storage) error {
		return seed(ctx, user.NewService(nil, tx), c.AdminEmail, c.AdminPassword, l)
	})
}

func seed(ctx context.Context, users *user.UserService, adminEmail, adminPassword string, l logger.Logger) error {
	for _, r := range baseRoles {
		_, created, err := users.EnsureRole(ctx, r.Name, r.Description)
		if err != nil {
			return fmt.Errorf("role %s: %w", r.Name, err)
		}
		l.Info("role ready", "name", r.Name, "created", created)
	}

	admin, created, err := users.EnsureUser(ctx, user.NewUser{
		Email:     adminEmail,
		Password:  adminPassword,
		FirstName: "Super",
		LastName:  "Administrator",
	})
	if err != nil {
		return fmt.Errorf("admin user: %w", err)
	}
	l.Info("admin ready", "email", admin.Email, "id", admin.ID, "created", created)

	if err := users.AssignRole(ctx, admin.ID, "admin"); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	return nil
}
