// craftbridge - game server activity tracker and chat bridge
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/ernie/craftbridge/internal/bridge"
	"github.com/ernie/craftbridge/internal/chat"
	"github.com/ernie/craftbridge/internal/clock"
	"github.com/ernie/craftbridge/internal/config"
	"github.com/ernie/craftbridge/internal/domain"
	"github.com/ernie/craftbridge/internal/gamebus"
	"github.com/ernie/craftbridge/internal/rollup"
	"github.com/ernie/craftbridge/internal/storage"
	"github.com/ernie/craftbridge/internal/tracker"
	flag "github.com/spf13/pflag"
)

var version = "dev"

const defaultConfigPath = "/etc/craftbridge/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "stats":
		cmdStats(os.Args[2:])
	case "top":
		cmdTop(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "version":
		fmt.Printf("craftbridge %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: craftbridge <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the tracker and chat bridge")
	fmt.Println("  stats                               Show today's stats for all players")
	fmt.Println("  top [--metric M] [--period P]       Show the leaderboard (default: kills weekly)")
	fmt.Println("  report                              Print today's rollup report without sending it")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/craftbridge/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  craftbridge serve --config /etc/craftbridge/config.yml")
	fmt.Println("  craftbridge top --metric distance --period monthly")
}

// cmdServe starts the tracker, the chat gateway session, and the rollup scheduler
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Craftbridge %s starting...", version)

	clk := clock.New()

	store, err := storage.New(cfg.Database.Path, clk)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	bus, err := gamebus.Start(cfg.Game)
	if err != nil {
		log.Fatalf("Failed to start game bus: %v", err)
	}
	defer bus.Close()
	log.Printf("Game bus connected at %s", cfg.Game.BusURL)

	events, err := bus.SubscribeEvents(256)
	if err != nil {
		log.Fatalf("Failed to subscribe to game events: %v", err)
	}

	chatClient := chat.New(cfg.Chat)
	br := bridge.New(bus, chatClient, cfg.Chat.BridgeChannelID, cfg.Chat.AppUserID)
	commands := bridge.NewCommands(store, bus)

	ingestor := tracker.NewIngestor(store, clk)
	ingestor.OnChat = br.RelayGameChat

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chatClient.OnMessage = func(msg domain.ChatMessage) {
		if msg.IsBot || msg.AuthorID == cfg.Chat.AppUserID {
			return
		}
		if reply, ok := commands.Dispatch(ctx, msg); ok {
			if err := chatClient.SendMessage(msg.ChannelID, reply); err != nil {
				log.Printf("Failed to send command reply: %v", err)
			}
			return
		}
		br.HandleMessage(msg)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ingestor.Run(ctx, events)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		chatClient.Run(ctx)
	}()

	if cfg.RollupEnabled() {
		sched := rollup.New(store, br, clk)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
		log.Printf("Daily rollup scheduled for %v", rollup.NextMidnight(clk.Now()))
	} else {
		log.Printf("Daily rollup disabled by config")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	cancel()
	wg.Wait()
	log.Println("Shutdown complete")
}

// openCLIStore loads config and opens the database for read-side commands
func openCLIStore(configPath string) *storage.Store {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.Database.Path, clock.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	store := openCLIStore(*configPath)
	defer store.Close()

	rows, err := store.GetAllToday(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(rows) == 0 {
		fmt.Println("No stats recorded today")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tKILLS\tDEATHS\tDISTANCE\tPLAYTIME\tACHIEVEMENTS")
	fmt.Fprintln(w, "------\t-----\t------\t--------\t--------\t------------")
	for _, row := range rows {
		name := row.GameName
		if name == "" {
			name = row.GameID
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%s\t%d\n",
			name, row.Kills, row.Deaths, row.DistanceDaily,
			bridge.FormatMinutes(row.PlaytimeMinutes), row.AchievementsCount)
	}
	w.Flush()
}

func cmdTop(args []string) {
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	metricName := fs.String("metric", "kills", "ranking metric: kills, distance, achievements")
	periodName := fs.String("period", "weekly", "ranking period: weekly, monthly")
	limit := fs.Int("limit", 10, "number of entries to show")
	fs.Parse(args)

	metric, err := domain.ParseMetric(*metricName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid metric %q (use: kills, distance, achievements)\n", *metricName)
		os.Exit(1)
	}
	period, err := domain.ParsePeriod(*periodName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid period %q (use: weekly, monthly)\n", *periodName)
		os.Exit(1)
	}

	store := openCLIStore(*configPath)
	defer store.Close()

	entries, err := store.Top(context.Background(), metric, period, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No stats recorded for that period")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tVALUE")
	fmt.Fprintln(w, "----\t------\t-----")
	for _, e := range entries {
		name := e.GameName
		if name == "" {
			name = e.GameID
		}
		if metric == domain.MetricDistance {
			fmt.Fprintf(w, "%d\t%s\t%.1f\n", e.Rank, name, e.Value)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%.0f\n", e.Rank, name, e.Value)
		}
	}
	w.Flush()
}

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	store := openCLIStore(*configPath)
	defer store.Close()

	rows, err := store.GetAllToday(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(rows) == 0 {
		fmt.Println("No stats recorded today")
		return
	}

	for _, chunk := range rollup.BuildReport(domain.DateOf(clock.New().Now()), rows) {
		fmt.Println(chunk)
	}
}
