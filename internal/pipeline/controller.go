// Package pipeline drives one run: gather articles, translate, select,
// then fill every layout slot with a composed and delivered image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/deusflow/dispatch/internal/ai"
	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/imgfetch"
	"github.com/deusflow/dispatch/internal/metrics"
	"github.com/deusflow/dispatch/internal/news"
	"github.com/deusflow/dispatch/internal/ratelimit"
	"github.com/deusflow/dispatch/internal/storage"
	"github.com/deusflow/dispatch/internal/webhook"
)

// ErrNoImage is the own-image failure for articles without an image URL.
var ErrNoImage = errors.New("article has no image url")

const unselectedMessage = "no article selected for this slot"

type ArticleSource interface {
	FetchAll(ctx context.Context, topics []config.Topic) ([]news.Article, error)
}

type Translator interface {
	Translate(ctx context.Context, articles []news.Article) []news.Article
}

type Selector interface {
	Select(ctx context.Context, articles []news.Article) ([]ai.Analysis, error)
}

type ImageLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type Composer interface {
	Compose(ctx context.Context, img image.Image, headline string, highlights []string) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, name string, png []byte) (string, error)
}

type TaskHook interface {
	SendTask(ctx context.Context, t webhook.Task) error
}

type BundleHook interface {
	SendBundle(ctx context.Context, items []webhook.BundleItem) error
}

type StatusReporter interface {
	Report(s webhook.Status)
}

type HistoryStore interface {
	Save(ctx context.Context, run storage.RunSummary) error
}

// Deps are the collaborators of a Controller. Bundle, Status, History,
// Budget and Metrics are optional.
type Deps struct {
	Source     ArticleSource
	Translator Translator
	Selector   Selector
	Images     ImageLoader
	Generator  ImageGenerator
	Composer   Composer
	Uploader   Uploader
	UploadName string // shown in the "Uploading to ..." log line
	Tasks      TaskHook
	Bundle     BundleHook
	Status     StatusReporter
	History    HistoryStore
	Budget     *ratelimit.Budget
	Metrics    *metrics.Metrics
}

type Controller struct {
	layout *config.Layout
	deps   Deps
	log    *slog.Logger
	now    func() time.Time
}

func New(layout *config.Layout, deps Deps, log *slog.Logger) (*Controller, error) {
	if layout == nil || len(layout.Slots) == 0 {
		return nil, errors.New("pipeline: layout has no slots")
	}
	switch {
	case deps.Source == nil:
		return nil, errors.New("pipeline: article source is required")
	case deps.Translator == nil:
		return nil, errors.New("pipeline: translator is required")
	case deps.Selector == nil:
		return nil, errors.New("pipeline: selector is required")
	case deps.Images == nil || deps.Generator == nil:
		return nil, errors.New("pipeline: image loader and generator are required")
	case deps.Composer == nil:
		return nil, errors.New("pipeline: composer is required")
	case deps.Uploader == nil:
		return nil, errors.New("pipeline: uploader is required")
	case deps.Tasks == nil:
		return nil, errors.New("pipeline: task hook is required")
	}
	if deps.UploadName == "" {
		deps.UploadName = "Cloudinary"
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{layout: layout, deps: deps, log: log, now: time.Now}, nil
}

// NewRun prepares a run for this controller's layout without starting it.
func (c *Controller) NewRun() *Run {
	return NewRun(c.layout)
}

// Run creates and executes a fresh run.
func (c *Controller) Run(ctx context.Context) (*Run, error) {
	run := c.NewRun()
	return run, c.Execute(ctx, run)
}

// Execute drives run to completion. The returned error is the run-fatal
// failure, if any; per-slot failures are recorded on the slots only.
func (c *Controller) Execute(ctx context.Context, run *Run) (err error) {
	start := c.now()
	run.setStarted(start)
	if c.deps.Budget != nil {
		c.deps.Budget.Reset()
	}
	m := c.deps.Metrics
	m.IncrementRunsStarted()

	c.emit(run, LevelInfo, "Automation process started.", "", nil)

	defer func() {
		c.finish(ctx, run)
		m.RecordProcessingTime(c.now().Sub(start))
		m.SetLastRun()
		if err != nil {
			m.IncrementRunsFailed()
			m.SetError(err.Error())
		} else {
			m.IncrementRunsCompleted()
		}
	}()

	if err := c.process(ctx, run); err != nil {
		c.emit(run, LevelError, "Automation failed critically: "+err.Error(), "", nil)
		run.setFatal(err.Error())
		run.failOpen("Process failed")
		return err
	}
	return nil
}

func (c *Controller) process(ctx context.Context, run *Run) error {
	c.emit(run, LevelInfo, "Gathering a large pool of articles from all sources...", "", nil)
	if err := run.moveAll(StatusGathering); err != nil {
		return err
	}

	articles, err := c.deps.Source.FetchAll(ctx, c.layout.Topics)
	if err != nil {
		return err
	}
	run.setArticles(len(articles))
	c.deps.Metrics.AddArticlesGathered(len(articles))
	c.emit(run, LevelSuccess, fmt.Sprintf("Successfully gathered %d unique articles.", len(articles)), "", nil)

	c.emit(run, LevelInfo, "Translating articles to English for consistent analysis...", "", nil)
	articles = c.deps.Translator.Translate(ctx, articles)
	c.emit(run, LevelSuccess, fmt.Sprintf("Translation complete. Pool of %d articles is ready.", len(articles)), "", nil)

	c.emit(run, LevelInfo, fmt.Sprintf("Sending article pool of %d articles to AI for selection and analysis...", len(articles)), "", nil)
	if err := run.moveAll(StatusProcessing); err != nil {
		return err
	}
	analyses, err := c.deps.Selector.Select(ctx, articles)
	if err != nil {
		return err
	}
	c.emit(run, LevelSuccess, fmt.Sprintf("AI has selected and analyzed %d articles.", len(analyses)), "", nil)

	byCategory := make(map[string][]*Slot)
	for _, s := range run.slots {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}
	filled := make(map[string]bool, len(run.slots))

	for _, a := range analyses {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}

		if a.OriginalArticleIndex < 0 || a.OriginalArticleIndex >= len(articles) {
			c.emit(run, LevelError, fmt.Sprintf("AI returned an invalid article ID: %d", a.OriginalArticleIndex), "", nil)
			continue
		}

		var slot *Slot
		for _, s := range byCategory[a.Category] {
			if !filled[s.ID] {
				slot = s
				break
			}
		}
		if slot == nil {
			c.emit(run, LevelError, fmt.Sprintf("AI returned an article for category '%s', but all slots are already filled.", a.Category), "", nil)
			continue
		}
		filled[slot.ID] = true

		c.runSlot(ctx, run, slot, articles[a.OriginalArticleIndex], a)
	}

	for _, s := range run.slots {
		if !filled[s.ID] {
			run.fail(s, unselectedMessage)
			c.deps.Metrics.IncrementSlotsFailed()
		}
	}
	return nil
}

// runSlot processes one slot and records the outcome on it. It never
// returns an error: slot failures stay on the slot.
func (c *Controller) runSlot(ctx context.Context, run *Run, slot *Slot, article news.Article, a ai.Analysis) {
	res, err := c.processSlot(ctx, run, slot, article, a)
	if err == nil {
		err = run.complete(slot, res)
	}
	if err != nil {
		run.fail(slot, err.Error())
		c.deps.Metrics.IncrementSlotsFailed()
		c.emit(run, LevelError, "Processing failed: "+err.Error(), slot.Name, nil)
		return
	}
	c.deps.Metrics.IncrementSlotsDone()
	c.emit(run, LevelSuccess, "Task completed successfully!", slot.Name, map[string]any{"headline": a.Headline})
}

func (c *Controller) processSlot(ctx context.Context, run *Run, slot *Slot, article news.Article, a ai.Analysis) (res TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("slot processing panicked", "run_id", run.id, "slot", slot.ID, "panic", r)
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	img, err := c.acquireImage(ctx, run, slot, article, a)
	if err != nil {
		return res, err
	}

	if err := run.move(slot, StatusComposing); err != nil {
		return res, err
	}
	c.emit(run, LevelInfo, "Composing final image.", slot.Name, nil)
	png, err := c.deps.Composer.Compose(ctx, img, a.Headline, a.HighlightPhrases)
	if err != nil {
		return res, fmt.Errorf("composing image: %w", err)
	}

	if err := run.move(slot, StatusUploading); err != nil {
		return res, err
	}
	c.emit(run, LevelInfo, fmt.Sprintf("Uploading to %s.", c.deps.UploadName), slot.Name, nil)
	imageURL, err := c.deps.Uploader.Upload(ctx, run.id+"/"+slot.ID, png)
	if err != nil {
		return res, fmt.Errorf("uploading image: %w", err)
	}

	if err := run.move(slot, StatusSendingWebhook); err != nil {
		return res, err
	}
	c.emit(run, LevelInfo, "Sending to workflow.", slot.Name, nil)
	task := webhook.Task{
		Headline: a.Headline,
		ImageURL: imageURL,
		Summary:  a.Caption,
		NewsLink: article.Link,
		Status:   "Queue",
	}
	if err := c.deps.Tasks.SendTask(ctx, task); err != nil {
		c.deps.Metrics.IncrementWebhooksFailed()
		return res, err
	}
	c.deps.Metrics.IncrementWebhooksSent()

	return TaskResult{
		Headline:   a.Headline,
		ImageURL:   imageURL,
		Caption:    a.Caption,
		SourceURL:  article.Link,
		SourceName: a.SourceName,
	}, nil
}

// acquireImage loads the article's own image and falls back to generating
// one from the analysis prompt.
func (c *Controller) acquireImage(ctx context.Context, run *Run, slot *Slot, article news.Article, a ai.Analysis) (image.Image, error) {
	img, err := c.loadOwnImage(ctx, article)
	if err == nil {
		c.emit(run, LevelInfo, "Article image loaded.", slot.Name, nil)
		return img, nil
	}

	c.emit(run, LevelInfo, "Article image failed. Generating new one.", slot.Name, map[string]any{"error": err.Error()})
	if err := run.move(slot, StatusGeneratingImage); err != nil {
		return nil, err
	}
	data, err := c.deps.Generator.Generate(ctx, a.ImagePrompt)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	c.deps.Metrics.IncrementImagesGenerated()
	img, err = imgfetch.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding generated image: %w", err)
	}
	return img, nil
}

func (c *Controller) loadOwnImage(ctx context.Context, article news.Article) (image.Image, error) {
	if article.ImageURL == "" {
		return nil, ErrNoImage
	}
	return c.deps.Images.Load(ctx, article.ImageURL)
}

// finish runs after every run, fatal or not: it sends the final bundle and
// stores the summary.
func (c *Controller) finish(ctx context.Context, run *Run) {
	c.emit(run, LevelSuccess, "Automation process finished.", "", nil)

	// the bundle and history must go out even when the run context is done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	results := run.resultsCopy()
	if len(results) == 0 {
		c.emit(run, LevelInfo, "No successful content was generated to be sent in the final bundle.", "", nil)
	} else {
		c.emit(run, LevelInfo, fmt.Sprintf("Sending final bundle of %d content pieces to webhook.", len(results)), "", nil)
		if err := c.sendBundle(ctx, results); err != nil {
			c.deps.Metrics.IncrementWebhooksFailed()
			c.emit(run, LevelError, "Failed to send final content bundle: "+err.Error(), "", nil)
		} else {
			c.emit(run, LevelSuccess, "Final bundle sent successfully.", "", nil)
		}
	}

	run.setFinished(c.now())
	if c.deps.History != nil {
		if err := c.deps.History.Save(ctx, run.Summary()); err != nil {
			c.log.Warn("failed to save run history", "run_id", run.id, "error", err)
		}
	}
}

func (c *Controller) sendBundle(ctx context.Context, results []TaskResult) error {
	if c.deps.Bundle == nil {
		return nil
	}
	items := make([]webhook.BundleItem, len(results))
	for i, r := range results {
		items[i] = webhook.BundleItem{ImageURL: r.ImageURL, Caption: r.Caption, SourceLink: r.SourceURL}
	}
	if err := c.deps.Bundle.SendBundle(ctx, items); err != nil {
		return err
	}
	c.deps.Metrics.IncrementWebhooksSent()
	return nil
}

// emit records a log entry on the run, mirrors it to slog and hands it to
// the status reporter without waiting.
func (c *Controller) emit(run *Run, level, msg, category string, details map[string]any) {
	now := c.now()
	run.addLog(LogEntry{Level: level, Message: msg, Category: category, Details: details, Timestamp: now})

	args := []any{"run_id", run.id}
	if category != "" {
		args = append(args, "category", category)
	}
	for k, v := range details {
		args = append(args, k, v)
	}
	if level == LevelError {
		c.log.Error(msg, args...)
	} else {
		c.log.Info(msg, args...)
	}

	if c.deps.Status != nil {
		c.deps.Status.Report(webhook.Status{
			Level:     level,
			Message:   msg,
			Category:  category,
			Details:   details,
			Timestamp: now.UTC().Format(time.RFC3339Nano),
		})
	}
}
