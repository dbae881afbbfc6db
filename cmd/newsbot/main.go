package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsbot/internal/app"
	"newsbot/internal/config"
	"newsbot/internal/news"
	"newsbot/internal/storage"
	logx "newsbot/pkg/logx"
)

var version = "dev"

var (
	configPath string
	envFile    string
)

// errNotSent makes "ledger has" exit non-zero for links never posted.
var errNotSent = errors.New("link not in ledger")

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and maps the result to a process exit status:
// 0 on success, 2 for configuration errors, 1 for anything else.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotSent):
		return 1
	}
	fmt.Fprintln(stderr, "fatal:", err)
	if errors.Is(err, config.ErrConfiguration) {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:           "newsbot",
	Short:         "Post translated tech news to a Telegram channel",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if envFile != "" {
			return config.LoadDotenv(envFile)
		}
		return config.LoadDotenv()
	},
	RunE: func(cmd *cobra.Command, args []string) error { return runBot() },
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NEWSBOT_CONFIG"), "Path to config file (JSON or YAML, optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file (default ./.env if present)")

	fetchCmd.Flags().IntVarP(&fetchLimit, "limit", "n", 10, "Maximum articles to print")

	ledgerCmd.AddCommand(ledgerImportCmd, ledgerHasCmd, ledgerListCmd)
	rootCmd.AddCommand(runCmd, fetchCmd, ledgerCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "newsbot", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot until interrupted (default)",
	RunE:  func(cmd *cobra.Command, args []string) error { return runBot() },
}

func runBot() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(configPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
	defer c()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	return a.Err()
}

// parseConfig reads file and environment without requiring the bot secrets,
// so maintenance commands work on a partial setup.
func parseConfig() (*config.Config, error) {
	return config.NewConfigManager(configPath).Parse()
}

var fetchLimit int

var fetchCmd = &cobra.Command{
	Use:   "fetch [query]",
	Short: "Fetch and print articles without posting",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := parseConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.News.APIKey) == "" {
			return fmt.Errorf("%w: news.api_key is required (set %s)", config.ErrConfiguration, config.EnvNewsAPIKey)
		}
		c := news.NewClient(news.Config{
			Endpoint: cfg.News.Endpoint,
			Host:     cfg.News.Host,
			APIKey:   cfg.News.APIKey,
			Query:    cfg.News.Query,
			Language: cfg.News.Language,
			Sort:     cfg.News.Sort,
			Timeout:  config.Duration(cfg.News.Timeout, 0),
		}, nil, logx.NewConsole("warn"))

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		articles := c.Fetch(cmd.Context(), query)
		for i, a := range articles {
			if i >= fetchLimit {
				break
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n    %s\n    %s\n", i+1, a.Title, a.Publisher, a.Link)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d article(s)\n", len(articles))
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or migrate the sent-link ledger",
}

func openLedger() (storage.Ledger, error) {
	cfg, err := parseConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      cfg.Ledger.Driver,
		Path:        cfg.Ledger.Path,
		BusyTimeout: config.Duration(cfg.Ledger.BusyTimeout, time.Second),
	}, logx.Nop())
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a newline-delimited link log into the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()
		st, err := storage.ImportFile(cmd.Context(), l, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "read %d, imported %d, skipped %d\n", st.Read, st.Imported, st.Skipped)
		return nil
	},
}

var ledgerHasCmd = &cobra.Command{
	Use:   "has <link>",
	Short: "Report whether a link was already posted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()
		ok, err := l.Contains(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "not sent")
			return errNotSent
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sent")
		return nil
	},
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every recorded link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()
		lister, ok := l.(storage.Lister)
		if !ok {
			return errors.New("ledger driver cannot list links")
		}
		links, err := lister.Links(cmd.Context())
		if err != nil {
			return err
		}
		for _, link := range links {
			fmt.Fprintln(cmd.OutOrStdout(), link)
		}
		return nil
	},
}
