package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vlmeval/pkg/cache"
	"vlmeval/pkg/core"
	"vlmeval/pkg/dataset"
	"vlmeval/pkg/eval"
	"vlmeval/pkg/metric"
	"vlmeval/pkg/model"
	"vlmeval/pkg/prompt"
	"vlmeval/pkg/reporter"
	"vlmeval/pkg/runlog"
	"vlmeval/pkg/sampling"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultNumSamples   = 5000
	defaultQuerySet     = 2048
	defaultBatchSize    = 8
	defaultNumBeams     = 3
	defaultLenPenalty   = -2.0
	captionMaxNewTokens = 20
	vqaMaxNewTokens     = 5
)

func newEvalCommand() *cobra.Command {
	var (
		tasks          []string
		shots          []int
		numTrials      int
		trialSeeds     []int64
		numSamples     int
		querySetSize   int
		batchSize      int
		provider       string
		modelName      string
		format         string
		outputPath     string
		logDir         string
		logFormat      string
		cacheEnabled   bool
		cacheDir       string
		rateLimitRPS   float64
		rateLimitBurst int
		maxNewTokens   int
		numBeams       int
		lengthPenalty  float64
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a few-shot evaluation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tasks) == 0 {
				return errors.New("at least one task is required")
			}
			if len(shots) == 0 {
				shots = appConfig.Shots
			}
			if len(shots) == 0 {
				shots = []int{0, 4, 8}
			}
			if len(trialSeeds) == 0 {
				trialSeeds = appConfig.TrialSeeds
			}
			if len(trialSeeds) == 0 {
				trialSeeds = []int64{42}
			}
			trials := resolveInt(numTrials, appConfig.NumTrials, 1)
			samples := resolveInt(numSamples, appConfig.NumSamples, defaultNumSamples)
			querySet := resolveInt(querySetSize, appConfig.QuerySetSize, defaultQuerySet)
			batch := resolveInt(batchSize, appConfig.BatchSize, defaultBatchSize)

			providerResolved := resolveString(provider, appConfig.Provider)
			if providerResolved == "" {
				providerResolved = "mock"
			}
			formatResolved := resolveString(format, appConfig.Format)
			if formatResolved == "" {
				formatResolved = "table"
			}
			outputResolved := resolveString(outputPath, appConfig.Output)
			logDirResolved := resolveString(logDir, appConfig.LogDir)
			logFormatResolved := resolveString(logFormat, appConfig.LogFormat)
			if logFormatResolved == "" {
				logFormatResolved = "json"
			}

			evalModel, err := buildModel(providerResolved, modelName)
			if err != nil {
				return err
			}
			if cacheEnabled {
				promptCache, err := cache.New(resolveString(cacheDir, appConfig.CacheDir), 0)
				if err != nil {
					return err
				}
				evalModel = model.Cached{Model: evalModel, Cache: promptCache}
			}
			if rps := resolveFloat(rateLimitRPS, appConfig.RateLimitRPS); rps > 0 {
				burst := resolveInt(rateLimitBurst, appConfig.RateLimitBurst, 1)
				limiter, stop, err := model.NewLimiter(rps, burst)
				if err != nil {
					return err
				}
				defer stop()
				evalModel = model.RateLimited{Model: evalModel, Limiter: limiter}
			}

			opts := core.GenerateOptions{
				MaxNewTokens:  resolveInt(maxNewTokens, appConfig.Model.MaxNewTokens, 0),
				NumBeams:      resolveInt(numBeams, appConfig.Model.NumBeams, defaultNumBeams),
				LengthPenalty: resolveFloat(lengthPenalty, appConfig.Model.LengthPenalty),
			}
			if opts.LengthPenalty == 0 {
				opts.LengthPenalty = defaultLenPenalty
			}

			runner := eval.Runner{
				Shots:     shots,
				Seeds:     trialSeeds,
				NumTrials: trials,
				Logger:    logger,
			}

			started := time.Now().UTC()
			results := core.Results{}
			effectiveSeeds := map[string][]int64{}
			progress := newProgressBar(progressWriter(cmd))

			for _, task := range tasks {
				trialFn, err := buildTrial(task, evalModel, opts, samples, querySet, batch, progress)
				if err != nil {
					return err
				}
				shotResults, seeds, err := runner.Run(cmd.Context(), task, trialFn)
				if err != nil {
					return err
				}
				results[task] = shotResults
				effectiveSeeds[task] = seeds
			}

			writer := io.Writer(os.Stdout)
			if outputResolved != "" {
				file, err := os.Create(outputResolved)
				if err != nil {
					return err
				}
				defer file.Close()
				writer = file
			}

			rep, err := buildReporter(formatResolved, writer)
			if err != nil {
				return err
			}
			if err := rep.Report(results); err != nil {
				return err
			}

			if logFormatResolved != "none" {
				if logDirResolved == "" {
					logDirResolved = "./logs"
				}
				log := runlog.Build(evalModel.Name(), shots, trials, effectiveSeeds, results, started, time.Now().UTC())
				if err := writeRunLog(logFormatResolved, logDirResolved, log); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tasks, "tasks", nil, "tasks to run (coco, flickr, vqav2, ok-vqa, imagenet)")
	cmd.Flags().IntSliceVar(&shots, "shots", nil, "shot counts to sweep")
	cmd.Flags().IntVar(&numTrials, "num-trials", 0, "trials per shot count")
	cmd.Flags().Int64SliceVar(&trialSeeds, "trial-seeds", nil, "seeds for trials; extended with random seeds when short")
	cmd.Flags().IntVar(&numSamples, "num-samples", 0, "evaluation subset size per trial")
	cmd.Flags().IntVar(&querySetSize, "query-set-size", 0, "demonstration pool size per trial")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "generation batch size")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider (mock, server, gemini, openai, anthropic)")
	cmd.Flags().StringVar(&modelName, "model", "", "model name override")
	cmd.Flags().StringVar(&format, "format", "", "output format (table, json, html, markdown, csv)")
	cmd.Flags().StringVar(&outputPath, "output", "", "output file path")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for run logs")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "run log format (json, archive, none)")
	cmd.Flags().BoolVar(&cacheEnabled, "cache", false, "cache generation outputs on disk")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "cache directory")
	cmd.Flags().Float64Var(&rateLimitRPS, "rate-limit-rps", 0, "max generate batches per second (0 = unlimited)")
	cmd.Flags().IntVar(&rateLimitBurst, "rate-limit-burst", 1, "rate limit burst size")
	cmd.Flags().IntVar(&maxNewTokens, "max-new-tokens", 0, "max generated tokens (0 = task default)")
	cmd.Flags().IntVar(&numBeams, "num-beams", 0, "beam count for decoding")
	cmd.Flags().Float64Var(&lengthPenalty, "length-penalty", 0, "decoding length penalty")

	return cmd
}

func buildModel(provider, modelName string) (core.Model, error) {
	switch provider {
	case "mock":
		return &model.Mock{NameValue: resolveString(modelName, "mock")}, nil
	case "server":
		srv := model.NewServer(appConfig.Server.BaseURL, resolveString(modelName, appConfig.Model.Name))
		if appConfig.Server.TimeoutSeconds > 0 {
			srv.Timeout = time.Duration(appConfig.Server.TimeoutSeconds) * time.Second
		}
		if appConfig.Server.MaxRetries > 0 {
			srv.MaxRetries = appConfig.Server.MaxRetries
		}
		if appConfig.Server.BackoffMillis > 0 {
			srv.Backoff = time.Duration(appConfig.Server.BackoffMillis) * time.Millisecond
		}
		return srv, nil
	case "gemini":
		geminiModel, err := model.NewGeminiFromEnv(resolveString(modelName, appConfig.Gemini.Model))
		if err != nil {
			return nil, err
		}
		if appConfig.Gemini.TimeoutSeconds > 0 {
			geminiModel.Timeout = time.Duration(appConfig.Gemini.TimeoutSeconds) * time.Second
		}
		if appConfig.Gemini.MaxRetries > 0 {
			geminiModel.MaxRetries = appConfig.Gemini.MaxRetries
		}
		if appConfig.Gemini.BackoffMillis > 0 {
			geminiModel.Backoff = time.Duration(appConfig.Gemini.BackoffMillis) * time.Millisecond
		}
		return geminiModel, nil
	case "openai":
		openaiModel, err := model.NewOpenAIFromEnv(resolveString(modelName, appConfig.OpenAI.Model))
		if err != nil {
			return nil, err
		}
		if appConfig.OpenAI.TimeoutSeconds > 0 {
			openaiModel.Timeout = time.Duration(appConfig.OpenAI.TimeoutSeconds) * time.Second
		}
		if appConfig.OpenAI.MaxRetries > 0 {
			openaiModel.MaxRetries = appConfig.OpenAI.MaxRetries
		}
		if appConfig.OpenAI.BackoffMillis > 0 {
			openaiModel.Backoff = time.Duration(appConfig.OpenAI.BackoffMillis) * time.Millisecond
		}
		return openaiModel, nil
	case "anthropic":
		anthropicModel, err := model.NewAnthropicFromEnv(resolveString(modelName, appConfig.Anthropic.Model))
		if err != nil {
			return nil, err
		}
		if appConfig.Anthropic.TimeoutSeconds > 0 {
			anthropicModel.Timeout = time.Duration(appConfig.Anthropic.TimeoutSeconds) * time.Second
		}
		if appConfig.Anthropic.MaxRetries > 0 {
			anthropicModel.MaxRetries = appConfig.Anthropic.MaxRetries
		}
		if appConfig.Anthropic.BackoffMillis > 0 {
			anthropicModel.Backoff = time.Duration(appConfig.Anthropic.BackoffMillis) * time.Millisecond
		}
		if appConfig.Anthropic.MaxTokens > 0 {
			anthropicModel.MaxTokens = appConfig.Anthropic.MaxTokens
		}
		return anthropicModel, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// buildTrial wires one task's datasets, prompt spec, and metric into a
// seedable trial closure for the runner.
func buildTrial(task string, evalModel core.Model, opts core.GenerateOptions, numSamples, querySetSize, batchSize int, progress *progressBar) (eval.TrialFunc, error) {
	switch task {
	case "coco":
		return captionTrial(task, appConfig.Coco, evalModel, opts, numSamples, querySetSize, batchSize, progress)
	case "flickr":
		return captionTrial(task, appConfig.Flickr, evalModel, opts, numSamples, querySetSize, batchSize, progress)
	case "vqav2":
		return vqaTrial(task, appConfig.VQAv2, prompt.VQASpec, evalModel, opts, numSamples, querySetSize, batchSize, progress)
	case "ok-vqa":
		return vqaTrial(task, appConfig.OKVQA, prompt.OKVQASpec, evalModel, opts, numSamples, querySetSize, batchSize, progress)
	case "imagenet":
		return classificationTrial(task, appConfig.ImageNet, evalModel, numSamples, querySetSize, progress)
	default:
		return nil, fmt.Errorf("unknown task: %s", task)
	}
}

func captionTrial(task string, cfg CaptionTaskConfig, evalModel core.Model, opts core.GenerateOptions, numSamples, querySetSize, batchSize int, progress *progressBar) (eval.TrialFunc, error) {
	if cfg.ScorerPath == "" {
		return nil, fmt.Errorf("task %s: scorer_path is required: %w", task, core.ErrConfiguration)
	}
	train, err := dataset.NewCaptionDataset(cfg.TrainImageDir, cfg.ValImageDir, cfg.AnnotationsPath, task, true)
	if err != nil {
		return nil, err
	}
	evalDS, err := dataset.NewCaptionDataset(cfg.TrainImageDir, cfg.ValImageDir, cfg.AnnotationsPath, task, false)
	if err != nil {
		return nil, err
	}

	corpusMetric := metric.Command{
		NameHint: "cider",
		Path:     cfg.ScorerPath,
		Args:     cfg.ScorerArgs,
		Key:      cfg.ScorerKey,
	}
	spec := prompt.CaptionSpec(task)
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = captionMaxNewTokens
	}

	return generationTrial(evalModel, train, evalDS, spec, corpusMetric, opts, numSamples, querySetSize, batchSize, progress), nil
}

func vqaTrial(task string, cfg VQATaskConfig, specFn func(string) prompt.Spec, evalModel core.Model, opts core.GenerateOptions, numSamples, querySetSize, batchSize int, progress *progressBar) (eval.TrialFunc, error) {
	train, err := dataset.NewVQADataset(cfg.TrainImageDir, cfg.TrainQuestionsPath, cfg.TrainAnnotationsPath, cfg.ImagePrefix, task)
	if err != nil {
		return nil, err
	}
	testPrefix := cfg.TestImagePrefix
	if testPrefix == "" {
		testPrefix = cfg.ImagePrefix
	}
	evalDS, err := dataset.NewVQADataset(cfg.TestImageDir, cfg.TestQuestionsPath, cfg.TestAnnotationsPath, testPrefix, task)
	if err != nil {
		return nil, err
	}

	var corpusMetric core.Metric
	if cfg.ScorerPath != "" {
		corpusMetric = metric.Command{
			NameHint: "vqa-accuracy",
			Path:     cfg.ScorerPath,
			Args:     cfg.ScorerArgs,
			Key:      cfg.ScorerKey,
		}
	} else {
		answers, err := metric.AnswersFromDataset(evalDS)
		if err != nil {
			return nil, err
		}
		corpusMetric = metric.AnswerAccuracy{Answers: answers}
	}
	spec := specFn(task)
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = vqaMaxNewTokens
	}

	return generationTrial(evalModel, train, evalDS, spec, corpusMetric, opts, numSamples, querySetSize, batchSize, progress), nil
}

func generationTrial(evalModel core.Model, train, evalDS core.Dataset, spec prompt.Spec, corpusMetric core.Metric, opts core.GenerateOptions, numSamples, querySetSize, batchSize int, progress *progressBar) eval.TrialFunc {
	return func(ctx context.Context, shots int, seed int64) (float64, error) {
		evalIdx, err := sampling.Indices(evalDS.Len(), sizeOrDefault(numSamples, evalDS.Len()), seed)
		if err != nil {
			return 0, err
		}
		queryIdx, err := sampling.Indices(train.Len(), sizeOrDefault(querySetSize, train.Len()), seed)
		if err != nil {
			return 0, err
		}
		pool, err := dataset.Gather(train, queryIdx)
		if err != nil {
			return 0, err
		}

		progress.Start(fmt.Sprintf("%s %d-shot", spec.Name, shots), len(evalIdx))
		g := eval.Generation{
			Model:    evalModel,
			Eval:     dataset.NewSubset(evalDS, evalIdx),
			Pool:     pool,
			Selector: sampling.NewSelector(seed),
			Spec:     spec,
			Metric:   corpusMetric,
			Shots:    shots,
			Batch:    batchSize,
			Options:  opts,
			Logger:   logger,
			Progress: progress.Update,
		}
		score, err := g.Run(ctx)
		progress.Finish()
		return score, err
	}
}

func classificationTrial(task string, cfg ClassificationTaskConfig, evalModel core.Model, numSamples, querySetSize int, progress *progressBar) (eval.TrialFunc, error) {
	likelihoodModel, ok := evalModel.(core.LikelihoodModel)
	if !ok {
		return nil, fmt.Errorf("task %s: provider %s cannot score candidate likelihoods: %w", task, evalModel.Name(), core.ErrConfiguration)
	}

	train, err := dataset.NewImageFolderDataset(cfg.TrainRoot, task)
	if err != nil {
		return nil, err
	}

	budget := cfg.Budget
	if budget <= 0 {
		budget = numSamples
	}
	spec := prompt.ClassificationSpec(task)

	// A single directory serves both roles: carve disjoint evaluation
	// and demonstration subsets out of it per trial.
	shared := cfg.ValRoot == "" || cfg.ValRoot == cfg.TrainRoot

	var val *dataset.ImageFolderDataset
	if !shared {
		val, err = dataset.NewImageFolderDataset(cfg.ValRoot, task)
		if err != nil {
			return nil, err
		}
	}

	return func(ctx context.Context, shots int, seed int64) (float64, error) {
		var evalDS core.Dataset
		var pool []core.Sample
		if shared {
			evalIdx, queryIdx, err := sampling.Split(train.Len(), sizeOrDefault(numSamples, train.Len()/2), sizeOrDefault(querySetSize, train.Len()/2), seed)
			if err != nil {
				return 0, err
			}
			evalDS = dataset.NewSubset(train, evalIdx)
			pool, err = dataset.Gather(train, queryIdx)
			if err != nil {
				return 0, err
			}
		} else {
			evalIdx, err := sampling.Indices(val.Len(), sizeOrDefault(numSamples, val.Len()), seed)
			if err != nil {
				return 0, err
			}
			queryIdx, err := sampling.Indices(train.Len(), sizeOrDefault(querySetSize, train.Len()), seed)
			if err != nil {
				return 0, err
			}
			evalDS = dataset.NewSubset(val, evalIdx)
			pool, err = dataset.Gather(train, queryIdx)
			if err != nil {
				return 0, err
			}
		}

		progress.Start(fmt.Sprintf("%s %d-shot", task, shots), clamp(budget, evalDS.Len()))
		l := eval.Likelihood{
			Model:    likelihoodModel,
			Eval:     evalDS,
			Pool:     pool,
			Selector: sampling.NewSelector(seed),
			Labels:   train.Classes(),
			Shots:    shots,
			Budget:   budget,
			Logger:   logger,
			Progress: progress.Update,
		}
		acc, err := l.Run(ctx)
		progress.Finish()
		if err != nil {
			return 0, err
		}
		logger.Info("classification accuracy",
			zap.String("task", task),
			zap.Float64("top1", acc.Top1),
			zap.Float64("top5", acc.Top5))
		return acc.Top1 * spec.ScoreScale, nil
	}, nil
}

func buildReporter(format string, writer io.Writer) (reporter.Reporter, error) {
	switch format {
	case reporter.FormatJSON:
		return reporter.JSONReporter{Writer: writer, Pretty: true}, nil
	case reporter.FormatTable:
		return reporter.TableReporter{Writer: writer}, nil
	case reporter.FormatHTML:
		return reporter.HTMLReporter{Writer: writer}, nil
	case reporter.FormatMarkdown:
		return reporter.MarkdownReporter{Writer: writer}, nil
	case reporter.FormatCSV:
		return reporter.CSVReporter{Writer: writer}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

func writeRunLog(format, logDir string, log runlog.RunLog) error {
	switch format {
	case "json":
		_, err := runlog.WriteJSON(logDir, log)
		return err
	case "archive", "zip":
		_, err := runlog.WriteArchive(logDir, log)
		return err
	case "none":
		return nil
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
}

// sizeOrDefault maps an unset subset size to the whole pool. Explicit
// sizes pass through untouched so an oversize request fails in the
// sampler instead of being silently shrunk.
func sizeOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// clamp bounds a display total the same way the likelihood path bounds
// its accuracy denominator.
func clamp(value, limit int) int {
	if value <= 0 || value > limit {
		return limit
	}
	return value
}

type progressBar struct {
	writer io.Writer
	label  string
	total  int
	start  time.Time
	isTTY  bool
}

func newProgressBar(writer io.Writer) *progressBar {
	return &progressBar{
		writer: writer,
		isTTY:  isTerminal(writer),
	}
}

func (p *progressBar) Start(label string, total int) {
	p.label = label
	p.total = total
	p.start = time.Now()
}

func (p *progressBar) Update(done, total int) {
	width := 30
	if total <= 0 {
		total = p.total
	}
	if total <= 0 {
		return
	}

	ratio := float64(done) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))

	bar := strings.Repeat("=", filled) + strings.Repeat(".", width-filled)
	percent := int(ratio * 100)
	elapsed := time.Since(p.start).Truncate(time.Second)

	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	line := fmt.Sprintf("%s [%s] %3d%% (%d/%d) %s", p.label, barStyle.Render(bar), percent, done, total, elapsed)
	if p.isTTY {
		fmt.Fprintf(p.writer, "\r%s", line)
	} else {
		fmt.Fprintf(p.writer, "%s\n", line)
	}
}

func (p *progressBar) Finish() {
	if p.isTTY {
		fmt.Fprintln(p.writer)
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func progressWriter(cmd *cobra.Command) io.Writer {
	stderr := cmd.ErrOrStderr()
	stdout := cmd.OutOrStdout()

	if isTerminal(stderr) {
		return stderr
	}
	if isTerminal(stdout) {
		return stdout
	}
	return stderr
}

func resolveString(value string, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func resolveInt(value int, fallback int, defaultValue int) int {
	if value > 0 {
		return value
	}
	if fallback > 0 {
		return fallback
	}
	return defaultValue
}

func resolveFloat(value float64, fallback float64) float64 {
	if value != 0 {
		return value
	}
	return fallback
}
