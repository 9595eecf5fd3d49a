// trackerd is the bet tracking daemon. It interprets free-text bets, binds
// them to today's MLB slate, and follows live games until every bet settles.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/statedge/betengine/pkg/bets"
	"github.com/statedge/betengine/pkg/config"
	"github.com/statedge/betengine/pkg/mlb"
	"github.com/statedge/betengine/pkg/notify"
	"github.com/statedge/betengine/pkg/roster"
	"github.com/statedge/betengine/pkg/storage"
	"github.com/statedge/betengine/pkg/streaming"
	"github.com/statedge/betengine/pkg/tracker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configPath = flag.String("config", "", "Path to config file (optional)")
	httpAddr   = flag.String("http", "", "HTTP server address (overrides config)")
	verbose    = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting bet tracking daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Parser.APIKey == "" {
		cfg.Parser.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	app, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.store.Close()

	go app.startHTTP(cfg.Server.Addr)

	if err := app.scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Printf("Daemon running (http=%s)", cfg.Server.Addr)
	log.Printf("WebSocket streaming available at ws://%s/ws", cfg.Server.Addr)

	<-sigCh
	log.Println("Shutting down...")

	app.scheduler.Stop()
	app.streamHub.Stop()
	cancel()

	open := app.engine.OpenBets()
	log.Printf("Goodbye (%d bets still open)", len(open))
}

type app struct {
	store     *storage.Storage
	engine    *tracker.Engine
	scheduler *tracker.Scheduler
	parser    *bets.Parser
	validator *bets.Validator
	metrics   *tracker.Metrics
	notifier  notify.Notifier
	streamHub *streaming.Hub
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		metrics:   tracker.NewMetrics(),
		streamHub: streaming.NewHub(),
	}
	go a.streamHub.Run()

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store

	mlbClient := mlb.NewClient(
		mlb.WithBaseURL(cfg.MLB.BaseURL),
		mlb.WithRateLimit(cfg.MLB.RateLimitRPS, 3),
	)

	index := roster.NewIndex()
	a.engine = tracker.NewEngine(store, a.metrics)

	schedCfg := tracker.DefaultSchedulerConfig()
	schedCfg.PollInterval = cfg.Tracking.PollInterval
	schedCfg.MaxConcurrentPolls = cfg.Tracking.MaxConcurrentPolls
	schedCfg.WindowStartMin, schedCfg.WindowEndMin, _ = cfg.Window() // validated at startup
	schedCfg.PregameLeads = cfg.PregameLeads()
	a.scheduler = tracker.NewScheduler(schedCfg, mlbClient, index, a.engine, a.metrics)
	a.scheduler.SetSnapshotStore(store)

	oracleCfg := bets.DefaultOracleConfig()
	oracleCfg.BaseURL = cfg.Parser.BaseURL
	oracleCfg.Model = cfg.Parser.Model
	oracleCfg.APIKey = cfg.Parser.APIKey
	oracleCfg.Timeout = cfg.Parser.Timeout
	a.parser = bets.NewParser(bets.NewOracle(oracleCfg))
	a.validator = bets.NewValidator(index, a.scheduler)

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Telegram notifier: %w", err)
		}
		a.notifier = tg
		log.Println("Telegram notifications enabled")
	} else {
		a.notifier = notify.LogNotifier{}
		log.Println("No Telegram credentials - alerts go to the process log")
	}

	a.engine.OnAlert(func(alert *tracker.Alert) {
		log.Printf("[alert] %s %s: %s %s at %.0f%%",
			alert.Type, alert.Stage, alert.SubjectName, alert.StatType, alert.Progress)
		a.notifier.Notify(alert)
		a.streamHub.BroadcastAlert(alert)
	})
	a.engine.OnProgress(func(b *bets.Bet) {
		if *verbose {
			log.Printf("[progress] %s: %.0f of %.1f (%.0f%%)",
				b.SubjectName, b.CurrentValue, b.TargetValue, b.ProgressPct)
		}
		a.streamHub.BroadcastProgress(b)
	})
	a.engine.OnSettle(func(b *bets.Bet) {
		log.Printf("[settle] %s %s %s: %s, payout %s",
			b.SubjectName, b.StatType, b.Operator, b.Status, b.Payout)
	})
	a.scheduler.OnAlert(func(alert *tracker.Alert) {
		a.notifier.Notify(alert)
		a.streamHub.BroadcastAlert(alert)
	})

	// Resume bets that were open when the previous process exited.
	active, err := store.ListActiveBets()
	if err != nil {
		return nil, fmt.Errorf("failed to load active bets: %w", err)
	}
	for _, b := range active {
		if err := a.engine.Track(b); err != nil {
			log.Printf("Failed to resume bet %s: %v", b.ID, err)
		}
	}
	if len(active) > 0 {
		log.Printf("Resumed %d open bets", len(active))
	}

	return a, nil
}

func (a *app) startHTTP(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.scheduler.Status())
	})

	mux.HandleFunc("/games", func(w http.ResponseWriter, r *http.Request) {
		if d := r.URL.Query().Get("date"); d != "" {
			games, err := a.store.GamesForDay(d)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, games)
			return
		}
		writeJSON(w, http.StatusOK, a.scheduler.Games())
	})

	mux.HandleFunc("/bets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			a.handleSubmit(w, r)
		case http.MethodGet:
			var list []*bets.Bet
			var err error
			if d := r.URL.Query().Get("date"); d != "" {
				day, perr := time.Parse("2006-01-02", d)
				if perr != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
					return
				}
				list, err = a.store.ListBetsForDay(day)
			} else {
				list, err = a.store.ListBets()
			}
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, list)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/bets/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/bets/")
		switch r.Method {
		case http.MethodGet:
			b, ok := a.engine.Bet(id)
			if !ok {
				var err error
				b, err = a.store.GetBet(id)
				if err != nil {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "bet not found"})
					return
				}
			}
			writeJSON(w, http.StatusOK, b)
		case http.MethodDelete:
			if err := a.engine.Cancel(id); err != nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", a.streamHub.ServeWS)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // parse calls an LLM
	}

	log.Printf("HTTP server listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

// handleSubmit runs the full interpretation pipeline: extract fields from the
// raw text, resolve the subject against today's slate, commit and track.
func (a *app) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"text\": \"...\"}"})
		return
	}

	start := time.Now()
	draft, err := a.parser.Parse(r.Context(), req.Text)
	if err != nil {
		a.metrics.RecordParse("error", time.Since(start).Seconds())
		var perr *bets.ParseError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": perr.Error(),
				"field": perr.Field,
			})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	a.metrics.RecordParse("ok", time.Since(start).Seconds())

	bet, err := a.validator.Validate(draft)
	if err != nil {
		var rej *bets.RejectionError
		if errors.As(err, &rej) {
			a.metrics.BetsRejected.WithLabelValues("resolution").Inc()
			suggestions := make([]string, len(rej.Suggestions))
			for i, s := range rej.Suggestions {
				suggestions[i] = s.Name
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":       rej.Reason,
				"suggestions": suggestions,
			})
			return
		}
		if errors.Is(err, bets.ErrStaleRoster) {
			a.metrics.BetsRejected.WithLabelValues("stale_roster").Inc()
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		a.metrics.BetsRejected.WithLabelValues("other").Inc()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if err := a.engine.Track(bet); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.streamHub.BroadcastBet(bet)

	log.Printf("[bet] committed %s", bet)
	writeJSON(w, http.StatusCreated, bet)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
