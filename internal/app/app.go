package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/briefing"
	"PaperDigest/internal/config"
	"PaperDigest/internal/delivery"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/fanout"
	"PaperDigest/internal/infrastructure/llm"
	"PaperDigest/internal/infrastructure/parser"
	"PaperDigest/internal/infrastructure/scheduler"
	"PaperDigest/internal/infrastructure/telegram"
	"PaperDigest/internal/ingest"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scanner"
	"PaperDigest/internal/session"
	"PaperDigest/internal/storage"
	"PaperDigest/internal/usecase"
)

// defaultFields seed the reference data on first start; existing rows are
// left untouched.
var defaultFields = []domain.ResearchField{
	{Name: "machine_learning", DisplayName: "Machine Learning",
		Categories: "cs.LG,cs.AI,stat.ML",
		Keywords:   "machine learning,deep learning,neural networks,optimization"},
	{Name: "nlp", DisplayName: "Natural Language Processing",
		Categories: "cs.CL,cs.LG",
		Keywords:   "natural language processing,LLM,transformer,language model"},
	{Name: "computer_vision", DisplayName: "Computer Vision",
		Categories: "cs.CV",
		Keywords:   "computer vision,image recognition,object detection,segmentation"},
	{Name: "robotics", DisplayName: "Robotics",
		Categories: "cs.RO",
		Keywords:   "robotics,autonomous,control,navigation"},
	{Name: "reinforcement_learning", DisplayName: "Reinforcement Learning",
		Categories: "cs.LG,cs.AI,cs.MA",
		Keywords:   "reinforcement learning,RL,multi-agent,game theory"},
	{Name: "ai_safety", DisplayName: "AI Safety & Alignment",
		Categories: "cs.AI,cs.LG,cs.CY",
		Keywords:   "AI safety,alignment,interpretability,robustness"},
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	pipeline *usecase.Pipeline
	sched    *usecase.Scheduler
	bot      *telegram.Bot
	sessions *session.Store
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	users := storage.NewUserRepository(db)
	userBriefings := storage.NewUserBriefingRepository(db)

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(nil))
	registry.Register(parser.NewOpenReviewScanner(nil))
	sources := parser.NewSiteSources(registry, cfg.Sources, baseLogger.With("component", "source"))

	var briefingClient ports.BriefingClient
	if cfg.LLM.APIKey != "" {
		briefingClient = llm.NewClient(cfg.LLM)
	}

	generator := briefing.NewGenerator(papers, briefings, briefingClient, cfg.LLM.Model,
		baseLogger.With("component", "briefing"))
	if cfg.Briefing.RecencyDays > 0 {
		generator.RecencyWindow = time.Duration(cfg.Briefing.RecencyDays) * 24 * time.Hour
	}
	if cfg.Briefing.MaxPerRun > 0 {
		generator.MaxPerRun = cfg.Briefing.MaxPerRun
	}

	assigner := fanout.NewAssigner(userBriefings, baseLogger.With("component", "fanout"))
	state := delivery.NewStateMachine(userBriefings)
	notifier := telegram.NewNotifier(cfg.Telegram.BotToken)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:       sources,
		Ingest:        ingest.NewService(papers, baseLogger.With("component", "ingest")),
		Users:         users,
		UserBriefings: userBriefings,
		Generator:     generator,
		Assigner:      assigner,
		State:         state,
		Notifier:      notifier,
		PacingDelay:   cfg.Delivery.PacingDelay,
		Logger:        baseLogger.With("component", "pipeline"),
	})

	sched := usecase.NewScheduler(
		scheduler.NewTickerScheduler(cfg.Scheduler.FetchInterval, 0),
		scheduler.NewTickerScheduler(cfg.Scheduler.GenerateInterval, 30*time.Minute),
		scheduler.NewTickerScheduler(cfg.Scheduler.SendInterval, time.Hour),
		pipeline,
	)

	sessions := session.NewStore(cfg.Session.TTL)

	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		bot = telegram.NewBot(telegram.BotDeps{
			Token:       cfg.Telegram.BotToken,
			PollTimeout: cfg.Telegram.PollTimeout,
			Users:       users,
			Briefings:   userBriefings,
			Papers:      papers,
			Assigner:    assigner,
			State:       state,
			Sessions:    sessions,
			Notifier:    notifier,
			Logger:      baseLogger.With("component", "bot"),
		})
	}

	application := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		pipeline: pipeline,
		sched:    sched,
		bot:      bot,
		sessions: sessions,
	}

	if err := users.SeedFields(context.Background(), defaultFields); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed research fields: %w", err)
	}

	return application, nil
}

// RunOnce executes a single pipeline stage (or all of them) and exits.
func (a *Application) RunOnce(ctx context.Context, stage string) error {
	return a.pipeline.RunOnce(ctx, stage)
}

// Run starts the stage timers and the bot surface, then blocks until ctx is
// cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.sessions.StartCleanup(ctx, time.Minute)

	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if a.bot != nil {
		go a.bot.Run(ctx)
	} else {
		a.logger.Warn("telegram bot token missing, command surface disabled")
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.sched.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler stop failed", "error", err)
	}

	return a.db.Close()
}
