// Command watch is the terminal stockwatch client. It restores or opens a
// session, prints quotes for the watchlist and streams notifications until
// interrupted.
//
//	watch [SYMBOL...]            quotes and notifications
//	watch chat [QUESTION]        research chat, interactive without a question
//	watch chat history|clear     show or drop the stored conversation
//	watch feature NAME on|off    toggle local sound or desktop delivery
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"stockwatch/internal/client/api"
	"stockwatch/internal/client/notify"
	"stockwatch/internal/client/research"
	"stockwatch/internal/client/session"
	"stockwatch/internal/config"
	"stockwatch/internal/db"
	"stockwatch/internal/domain/market"
	"stockwatch/internal/pkg/storage"
	"stockwatch/internal/pkg/tokenstore"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var defaultWatchlist = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}

func main() {
	_ = godotenv.Load()
	cfg := config.LoadClient()

	logger := zap.NewNop()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], logger); err != nil {
		log.Fatalf("watch: %v", err)
	}
}

func openStorage(cfg config.ClientConfig) (storage.KV, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemoryKV(), nil
	case "redis":
		client, err := db.NewRedis(db.RedisConfig{
			Addresses: []string{cfg.RedisAddr},
			Password:  cfg.RedisPass,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewRedisKV(client, "stockwatch:client:"), nil
	case "file", "":
		return storage.OpenFile(cfg.StoragePath)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func run(ctx context.Context, cfg config.ClientConfig, args []string, logger *zap.Logger) error {
	kv, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	tokens, err := tokenstore.Load(ctx, kv)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	state := storage.NewState(kv)

	client := api.New(api.Config{BaseURL: cfg.APIURL, Timeout: cfg.Timeout}, tokens, logger)
	finance := api.New(api.Config{BaseURL: cfg.FinanceURL, Timeout: cfg.Timeout}, nil, logger)

	if len(args) > 0 {
		switch args[0] {
		case "chat":
			return runChat(ctx, research.NewAssistant(finance, state, logger), args[1:], os.Stdin, os.Stdout)
		case "feature":
			return runFeature(ctx, state, args[1:], os.Stdout)
		}
	}

	sessions := session.NewManager(client, tokens, logger)
	client.SetAuthenticator(sessions)
	defer sessions.Close()

	if !sessions.CheckAuth(ctx) {
		if cfg.Email == "" || cfg.Password == "" {
			return fmt.Errorf("not logged in: set STOCKWATCH_EMAIL and STOCKWATCH_PASSWORD")
		}
		if _, err := sessions.Login(ctx, cfg.Email, cfg.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	if u := sessions.Current().User; u != nil {
		fmt.Printf("Signed in as %s\n", u.Email)
	}

	symbols, err := watchlist(ctx, state, args)
	if err != nil {
		return err
	}
	if err := printQuotes(ctx, finance, symbols); err != nil {
		return err
	}

	channel := notify.NewChannel(func(ctx context.Context) (*websocket.Conn, error) {
		return client.CreateWebSocket(ctx, notify.ChannelPath)
	}, logger)
	sound, desktop := notify.LocalDelivery(ctx, state, notify.TerminalBell{W: os.Stdout}, &notify.WriterNotifier{W: os.Stdout}, logger)
	notifications := notify.NewService(client, channel, sound, desktop, logger)

	if _, err := notifications.LoadPreferences(ctx); err != nil {
		logger.Warn("failed to load notification preferences", zap.Error(err))
	}
	if _, err := notifications.LoadPriceAlerts(ctx); err != nil {
		logger.Warn("failed to load price alerts", zap.Error(err))
	}
	if _, err := notifications.LoadHistory(ctx, 20); err != nil {
		logger.Warn("failed to load notification history", zap.Error(err))
	}
	fmt.Printf("%d unread notifications\n", notifications.State().Value().UnreadCount)

	if err := channel.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "realtime connection failed, retrying in background")
	}
	defer channel.Stop()

	fmt.Println("Streaming notifications, Ctrl-C to quit.")
	<-ctx.Done()
	return nil
}

// watchlist returns symbols from args, persisting them, or the stored list.
func watchlist(ctx context.Context, state *storage.State, args []string) ([]string, error) {
	if len(args) > 0 {
		symbols := make([]string, 0, len(args))
		for _, a := range args {
			symbols = append(symbols, strings.ToUpper(a))
		}
		if err := state.SetWatchlist(ctx, symbols); err != nil {
			return nil, fmt.Errorf("save watchlist: %w", err)
		}
		return symbols, nil
	}

	symbols, err := state.Watchlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	if len(symbols) == 0 {
		return defaultWatchlist, nil
	}
	return symbols, nil
}

func printQuotes(ctx context.Context, finance *api.Client, symbols []string) error {
	quotes := make([]*market.Quote, len(symbols))
	failures := make([]error, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sym := range symbols {
		g.Go(func() error {
			var q market.Quote
			if err := finance.Get(gctx, "/api/quote/"+sym, &q); err != nil {
				if api.IsCanceled(err) {
					return err
				}
				failures[i] = err
				return nil
			}
			quotes[i] = &q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tCHANGE\tCHANGE %")
	for i, sym := range symbols {
		if q := quotes[i]; q != nil {
			fmt.Fprintf(w, "%s\t%.2f\t%+.2f\t%+.2f%%\n", q.Symbol, q.Price, q.Change, q.ChangePercent)
			continue
		}
		msg := "unavailable"
		if e, ok := api.AsError(failures[i]); ok && e.ServerMessage() != "" {
			msg = e.ServerMessage()
		}
		fmt.Fprintf(w, "%s\t%s\t\t\n", sym, msg)
	}
	return w.Flush()
}

func runChat(ctx context.Context, assistant *research.Assistant, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 1 {
		switch args[0] {
		case "clear":
			if err := assistant.Clear(ctx); err != nil {
				return fmt.Errorf("clear chat: %w", err)
			}
			fmt.Fprintln(out, "Chat history cleared.")
			return nil
		case "history":
			history, err := assistant.History(ctx)
			if err != nil {
				return fmt.Errorf("load chat: %w", err)
			}
			for _, m := range history {
				fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
			}
			return nil
		}
	}

	if len(args) > 0 {
		return ask(ctx, assistant, strings.Join(args, " "), out)
	}

	fmt.Fprintln(out, "Ask about the market, empty line to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		if err := ask(ctx, assistant, line, out); err != nil {
			if api.IsCanceled(err) {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func ask(ctx context.Context, assistant *research.Assistant, question string, out io.Writer) error {
	reply, err := assistant.Ask(ctx, question)
	if err != nil {
		if e, ok := api.AsError(err); ok && e.ServerMessage() != "" {
			return fmt.Errorf("chat: %s", e.ServerMessage())
		}
		return fmt.Errorf("chat: %w", err)
	}
	fmt.Fprintln(out, reply.Content)
	return nil
}

func runFeature(ctx context.Context, state *storage.State, args []string, out io.Writer) error {
	switch len(args) {
	case 0:
		for _, name := range []string{storage.FeatureSound, storage.FeatureDesktop} {
			on, err := state.Feature(ctx, name, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\n", name, onOff(on))
		}
		return nil
	case 2:
	default:
		return fmt.Errorf("usage: watch feature [sound|desktop on|off]")
	}

	name := strings.ToLower(args[0])
	if name != storage.FeatureSound && name != storage.FeatureDesktop {
		return fmt.Errorf("unknown feature %q", args[0])
	}
	var on bool
	switch strings.ToLower(args[1]) {
	case "on", "true":
		on = true
	case "off", "false":
	default:
		return fmt.Errorf("feature value must be on or off, got %q", args[1])
	}
	if err := state.SetFeature(ctx, name, on); err != nil {
		return fmt.Errorf("save feature: %w", err)
	}
	fmt.Fprintf(out, "%s %s\n", name, onOff(on))
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
