// Command famctl administers a gotchufam database: schema bootstrap, family invites and
// config scaffolding.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/gotchufam/internal/app"
	"github.com/charlesng35/gotchufam/internal/database"
	"github.com/charlesng35/gotchufam/internal/services"
	"github.com/charlesng35/gotchufam/pkg/crypto"
	"github.com/charlesng35/gotchufam/pkg/logger"
)

const usage = `usage: famctl [-config PATH] <command> [args]

commands:
  init-db                      create or update the database schema
  add-family [-base-url URL] NAME
                               create a family and print its invite link
  list-families                print every family with its invite link
  init-config FILE             write a config file with a fresh session secret
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("famctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	if command == "init-config" {
		return initConfig(rest, out)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init("warn", "console"); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	db, err := database.Open(cfg.Database.ConnectionConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDatabase(db)

	switch command {
	case "init-db":
		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(out, "database schema is up to date")
		return nil
	case "add-family":
		return addFamily(ctx, db, rest, out)
	case "list-families":
		return listFamilies(ctx, db, out)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func addFamily(ctx context.Context, db *gorm.DB, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-family", flag.ContinueOnError)
	fs.SetOutput(out)

	var baseURL string
	fs.StringVar(&baseURL, "base-url", "", "Public URL prefixed to the printed invite link")

	if err := fs.Parse(args); err != nil {
		return err
	}
	name := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if name == "" {
		return errors.New("add-family: NAME is required")
	}

	families, err := services.NewFamilyService(db)
	if err != nil {
		return err
	}
	family, err := families.CreateFamily(ctx, name)
	if err != nil {
		return err
	}

	logger.WithModule("famctl").Info("family created", zap.String("family_id", family.ID))
	fmt.Fprintln(out, inviteLink(baseURL, family.LoginID))
	return nil
}

func listFamilies(ctx context.Context, db *gorm.DB, out io.Writer) error {
	families, err := services.NewFamilyService(db)
	if err != nil {
		return err
	}
	rows, err := families.ListFamilies(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tINVITE")
	for _, family := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", family.ID, family.DisplayName, inviteLink("", family.LoginID))
	}
	return tw.Flush()
}

func initConfig(args []string, out io.Writer) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("init-config: FILE is required")
	}
	file := args[0]

	secret, err := crypto.GenerateToken(32)
	if err != nil {
		return fmt.Errorf("generate session secret: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("server.port", 8000)
	v.Set("server.log_level", "info")
	v.Set("database.driver", "sqlite")
	v.Set("database.path", "./data/gotchufam.sqlite")
	v.Set("presence.online_ttl", "30s")
	v.Set("presence.user_ttl", "2160h")
	v.Set("session.secret", secret)
	v.Set("peerjs.host", "localhost")
	v.Set("peerjs.port", 9000)
	v.Set("peerjs.path", "/gotchufam-peering")

	if err := v.SafeWriteConfigAs(file); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(out, "wrote %s\n", file)
	return nil
}

func loadConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfigFile(path)
}

func inviteLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/login?family=" + url.QueryEscape(token)
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
