package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/mohammad-safakhou/aiworker/config"
	"github.com/mohammad-safakhou/aiworker/internal/rag"
	"github.com/mohammad-safakhou/aiworker/internal/ratelimit"
	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/models"
	"github.com/mohammad-safakhou/aiworker/news/newsapi"
	"github.com/mohammad-safakhou/aiworker/provider"
	gemini_provider "github.com/mohammad-safakhou/aiworker/provider/gemini"
	local_provider "github.com/mohammad-safakhou/aiworker/provider/local"
	"github.com/mohammad-safakhou/aiworker/repository/redis_repository"
	"github.com/mohammad-safakhou/aiworker/stocks/alphavantage"
	"github.com/mohammad-safakhou/aiworker/tools/vector_index/pinecone"
	"github.com/mohammad-safakhou/aiworker/tools/web_search/googlecse"
)

func Run(addr string, cfgPath string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	cfg := appconfig.LoadConfig(cfgPath)

	ctx := context.Background()
	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		log.Printf("[MIGRATE] %v", err)
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}

	if cfg.Databases.Redis.Host == "" || cfg.Databases.Redis.Port == "" {
		return fmt.Errorf("redis not configured (databases.redis.host/port)")
	}
	rdb, err := redis_repository.Conn(ctx, cfg.Databases.Redis.Host, cfg.Databases.Redis.Port, cfg.Databases.Redis.Pass, cfg.Databases.Redis.DB, cfg.Databases.Redis.Timeout)
	if err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Databases.Redis.Host, cfg.Databases.Redis.Port, err)
	}

	// Provider: hosted Gemini with the local model as last resort.
	local := local_provider.NewClient(cfg.Providers.Local.EmbeddingDim)
	var prov provider.Provider = local
	if cfg.Providers.Gemini.APIKey != "" {
		gem := gemini_provider.NewClient(cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.CompletionModel, cfg.Providers.Gemini.EmbeddingModel, cfg.Providers.Gemini.Timeout)
		prov = provider.NewFallback(gem, local, log.New(log.Writer(), "[PROVIDER] ", log.LstdFlags))
	}

	news := newsapi.Client{APIKey: cfg.Sources.NewsAPI.APIKey, Endpoint: cfg.Sources.NewsAPI.Endpoint}
	stocks := alphavantage.Client{APIKey: cfg.Sources.AlphaVantage.APIKey, Endpoint: cfg.Sources.AlphaVantage.Endpoint}
	search := searchFetcher{googlecse.Search{APIKey: cfg.Sources.GoogleCSE.APIKey, CX: cfg.Sources.GoogleCSE.CX, Endpoint: cfg.Sources.GoogleCSE.Endpoint}}

	var index *pinecone.Index
	if cfg.Pinecone.APIKey != "" && cfg.Pinecone.IndexHost != "" {
		index = &pinecone.Index{APIKey: cfg.Pinecone.APIKey, IndexHost: cfg.Pinecone.IndexHost}
	}

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxCalls, rag.IntentNews, rag.IntentStock, rag.IntentSearch)

	pipeline := &rag.Pipeline{
		Provider: prov,
		News:     news,
		Stocks:   stocks,
		Search:   search,
		Limiter:  limiter,
		Contexts: st,
		Logger:   log.New(log.Writer(), "", log.LstdFlags),
	}
	if index != nil {
		pipeline.Index = index
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	auth := &AuthHandler{
		Store:       st,
		Secret:      []byte(secret),
		TokenTTL:    cfg.General.TokenTTL,
		Resets:      redis_repository.NewResetTokens(rdb, cfg.General.ResetTTL),
		FrontendURL: cfg.General.FrontendURL,
		Env:         cfg.General.Env,
		Logger:      log.New(log.Writer(), "[AUTH] ", log.LstdFlags),
	}
	auth.Register(e.Group("/auth"))

	schedLogger := log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	sched := &Scheduler{
		Store:    st,
		Rdb:      rdb,
		Provider: prov,
		Stop:     make(chan struct{}),
		Logger:   schedLogger,
		Jobs: []Job{
			{Name: "news_report", Kind: "news", Cron: cfg.Scheduler.NewsCron, Query: cfg.Scheduler.NewsTopic, Limit: 5, Prompt: "Summarize today's news: ", Fetch: news},
			{Name: "stock_report", Kind: "stock", Cron: cfg.Scheduler.StockCron, Query: cfg.Scheduler.StockSymbol, Limit: 3, Prompt: "Summarize stock performance: ", Fetch: stocks},
			{Name: "trends_report", Kind: "search", Cron: cfg.Scheduler.TrendsCron, Query: cfg.Scheduler.TrendsQuery, Limit: 5, Prompt: "Summarize web search results: ", Fetch: search},
		},
	}
	sched.Start()

	rh := &RagHandler{
		Pipeline:  pipeline,
		Store:     st,
		Provider:  prov,
		Index:     index,
		UploadDir: cfg.Uploads.Dir,
		Logger:    log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
	rh.Register(e.Group("/rag"), auth.Secret)

	th := &TasksHandler{
		Store:  st,
		News:   news,
		Stocks: stocks,
		Search: search,
		Logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
	th.Register(e.Group("/ingest"), auth.Secret)

	dh := &DashboardHandler{Store: st, Sched: sched, DefaultLimit: cfg.General.DefaultLimit}
	dh.Register(e.Group("/dashboard"), auth.Secret)

	reads := &ReadHandler{Store: st, Sched: sched}
	reads.Register(e.Group(""), auth.Secret)

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8000"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// searchFetcher adapts the CSE client to the fetcher shape the pipeline and
// jobs consume.
type searchFetcher struct {
	cse googlecse.Search
}

func (f searchFetcher) Fetch(ctx context.Context, query string, limit int) ([]models.Item, error) {
	return f.cse.Search(ctx, query, limit)
}
