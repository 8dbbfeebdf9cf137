// Package app wires configuration into a ready pipeline controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/dispatch/internal/ai"
	"github.com/deusflow/dispatch/internal/compose"
	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/imagegen"
	"github.com/deusflow/dispatch/internal/imgfetch"
	"github.com/deusflow/dispatch/internal/metrics"
	"github.com/deusflow/dispatch/internal/news"
	"github.com/deusflow/dispatch/internal/pipeline"
	"github.com/deusflow/dispatch/internal/ratelimit"
	"github.com/deusflow/dispatch/internal/retry"
	"github.com/deusflow/dispatch/internal/server"
	"github.com/deusflow/dispatch/internal/storage"
	"github.com/deusflow/dispatch/internal/telegram"
	"github.com/deusflow/dispatch/internal/upload"
	"github.com/deusflow/dispatch/internal/webhook"
)

type App struct {
	Config     *config.Config
	Layout     *config.Layout
	Controller *pipeline.Controller
	History    storage.Store
	Status     *webhook.StatusReporter

	log     *slog.Logger
	closers []func() error
}

// New builds every collaborator described by cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, layout *config.Layout, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Layout: layout, log: log}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	client := &http.Client{Timeout: cfg.RequestTimeout}
	retryCfg := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}

	budget := ratelimit.NewBudget(map[ratelimit.Service]int{
		ratelimit.Model: cfg.MaxModelRequests,
		ratelimit.Image: cfg.MaxImageGenerations,
	})

	completer, err := a.newCompleter(ctx)
	if err != nil {
		return err
	}
	completer = ai.Budgeted{Completer: completer, Budget: budget}

	gateway := news.NewGateway(a.log,
		news.NewAPITube(cfg.APITubeAPIKey, cfg.APITubeBaseURL, cfg.NewsLookbackDays, client),
		news.NewNewsAPI(cfg.NewsAPIKey, cfg.NewsAPIBaseURL, cfg.NewsLookbackDays, client),
		news.NewRSS(client, a.log),
	)
	if cfg.EnrichMaxArticles > 0 {
		gateway.WithEnricher(news.NewEnricher(client, cfg.EnrichMaxArticles, cfg.EnrichMinChars, a.log))
	}

	loader := imgfetch.New(client, cfg.AssetCacheTTL)
	a.closers = append(a.closers, func() error { loader.Close(); return nil })

	opts := compose.DefaultOptions()
	opts.BrandText = cfg.BrandText
	opts.LogoURL = cfg.LogoURL
	opts.OverlayURL = cfg.OverlayURL
	composer, err := compose.New(opts, loader)
	if err != nil {
		return fmt.Errorf("creating composer: %w", err)
	}

	uploader, uploadName, err := a.newUploader(ctx, client)
	if err != nil {
		return err
	}

	history, err := storage.Open(ctx, cfg.HistoryBackend, cfg.HistoryPath, cfg.DatabaseURL, cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	a.History = history
	a.closers = append(a.closers, history.Close)

	a.Status = webhook.NewStatusReporter(cfg.StatusWebhookURL, nil)

	bundles := bundleHooks{webhook.NewBundleHook(cfg.BundleWebhookURL, client)}
	if cfg.TelegramBotToken != "" {
		bundles = append(bundles, telegram.NewNotifier(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID, client, retryCfg))
		a.log.Info("telegram delivery enabled", "chat_id", cfg.TelegramChatID)
	}

	generator, err := a.newImageGenerator(ctx, budget)
	if err != nil {
		return err
	}

	a.Controller, err = pipeline.New(a.Layout, pipeline.Deps{
		Source:     gateway,
		Translator: ai.NewTranslator(completer, a.log),
		Selector:   ai.NewSelector(completer, a.Layout, a.log),
		Images:     loader,
		Generator:  generator,
		Composer:   composer,
		Uploader:   upload.Retrying{Uploader: uploader, Config: retryCfg},
		UploadName: uploadName,
		Tasks:      webhook.NewTaskHook(cfg.TaskWebhookURL, cfg.TaskWebhookToken, client, retryCfg),
		Bundle:     bundles,
		Status:     a.Status,
		History:    history,
		Budget:     budget,
		Metrics:    metrics.Global,
	}, a.log)
	return err
}

func (a *App) newCompleter(ctx context.Context) (ai.Completer, error) {
	cfg := a.Config
	switch strings.ToLower(cfg.AIProvider) {
	case "openai":
		a.log.Info("using OpenAI for model calls", "model", cfg.OpenAIModel)
		return ai.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, ""), nil
	case "gemini":
		g, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		a.log.Info("using Gemini for model calls", "model", cfg.GeminiModel)
		return g, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
}

func (a *App) newImageGenerator(ctx context.Context, budget *ratelimit.Budget) (pipeline.ImageGenerator, error) {
	cfg := a.Config
	switch strings.ToLower(cfg.ImageProvider) {
	case "openai":
		a.log.Info("using OpenAI for image generation", "model", cfg.ImageModel)
		return imagegen.NewOpenAI(cfg.OpenAIAPIKey, cfg.ImageModel, cfg.ImageSize, "", budget), nil
	case "gemini":
		g, err := imagegen.NewImagen(ctx, cfg.GeminiAPIKey, cfg.ImageModel, cfg.ImageAspectRatio, "", nil, budget)
		if err != nil {
			return nil, err
		}
		a.log.Info("using Imagen for image generation", "model", cfg.ImageModel)
		return g, nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.ImageProvider)
	}
}

func (a *App) newUploader(ctx context.Context, client *http.Client) (upload.Uploader, string, error) {
	cfg := a.Config
	switch cfg.UploadProvider {
	case "gcs":
		g, err := upload.NewGCS(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSPublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, g.Close)
		return g, "Cloud Storage", nil
	case "cloudinary":
		return upload.NewCloudinary(cfg.CloudinaryBaseURL, cfg.CloudinaryCloudName, cfg.CloudinaryUploadPreset, client), "Cloudinary", nil
	default:
		return nil, "", fmt.Errorf("unknown upload provider %q", cfg.UploadProvider)
	}
}

// bundleHooks delivers the final bundle to every target, attempting all of
// them even when one fails.
type bundleHooks []pipeline.BundleHook

func (b bundleHooks) SendBundle(ctx context.Context, items []webhook.BundleItem) error {
	var errs []error
	for _, h := range b {
		if err := h.SendBundle(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunOnce executes a single run bounded by the configured run timeout.
func (a *App) RunOnce(ctx context.Context) (*pipeline.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.RunTimeout)
	defer cancel()
	return a.Controller.Run(ctx)
}

// Serve runs the trigger server until ctx is done.
func (a *App) Serve(ctx context.Context, port int) error {
	srv := server.New(a.Controller, a.History, server.Options{
		Password:    a.Config.AppPassword,
		RunTimeout:  a.Config.RunTimeout,
		Metrics:     metrics.Global,
		Logger:      a.log,
		BaseContext: ctx,
	})
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
}

// Close flushes pending status updates and releases clients, in reverse
// order of creation.
func (a *App) Close() error {
	if a.Status != nil && !a.Status.Flush(5*time.Second) {
		a.log.Warn("timed out flushing status updates")
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
