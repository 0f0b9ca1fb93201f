package jobs

import (
	"context"
	"fmt"

	"cardforge/internal/card"
	"cardforge/internal/infra"
	"cardforge/internal/pngtext"
	"cardforge/internal/providers/llm"
)

// Runner drives one job at a time through its state machine: pending →
// running → completed/failed. Each submission gets its own goroutine; jobs
// are single-shot and never retried.
type Runner struct {
	store    *Store
	registry llm.Registry
	logger   infra.Logger
}

// NewRunner wires the lifecycle controller to its store and the closed
// provider registry.
func NewRunner(store *Store, registry llm.Registry, logger infra.Logger) *Runner {
	return &Runner{store: store, registry: registry, logger: logger}
}

// Start launches the job in a new goroutine. Processing is fire-and-forget:
// clients disconnecting from the stream have no effect on the job.
func (r *Runner) Start(id string) {
	go r.Run(id)
}

// Run processes the job synchronously. Every failure path ends in a failed
// record; a deferred recover guarantees a job is never left running because
// of an unhandled fault.
func (r *Runner) Run(id string) {
	logger := r.logger.With().Str("job_id", id).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("job panicked")
			r.fail(id, fmt.Sprintf("內部錯誤：%v", rec))
		}
	}()

	meta, err := r.store.MarkRunning(id)
	if err != nil {
		logger.Error().Err(err).Msg("mark running failed")
		return
	}
	payload, err := r.store.ReadInput(id)
	if err != nil {
		r.fail(id, fmt.Sprintf("無法讀取輸入資料：%v", err))
		return
	}

	gen, providerName, ok := r.registry.Resolve(meta.Provider)
	if !ok {
		r.fail(id, fmt.Sprintf("不支援的供應商：%s", meta.Provider))
		return
	}
	logger.Info().Str("provider", providerName).Msg("job started")

	raw, usage, err := gen.Generate(context.Background(), payload, func(text string) {
		if err := r.store.AppendStream(id, text); err != nil {
			logger.Warn().Err(err).Msg("stream append failed")
		}
	})
	if err != nil {
		r.fail(id, fmt.Sprintf("%s 呼叫失敗：%v", providerName, err))
		return
	}

	parsed, err := card.Parse(raw)
	if err != nil {
		r.fail(id, fmt.Sprintf("模型輸出格式不正確：%v", err))
		return
	}
	export := card.Export(parsed, utcNow())

	// Embedding is best-effort: a bad base image downgrades the job to a
	// JSON-only result instead of failing it.
	var pngBytes []byte
	baseImage, err := r.store.ReadBaseImage(id)
	if err != nil {
		logger.Warn().Err(err).Msg("base image read failed")
	}
	if len(baseImage) == 0 {
		baseImage = pngtext.DefaultBaseImage()
	}
	pngBytes, err = pngtext.Embed(baseImage, export)
	if err != nil {
		logger.Warn().Err(err).Msg("card embed failed, completing without image")
		pngBytes = nil
	}

	if _, err := r.store.Complete(id, raw, export, map[string]float64(usage), pngBytes); err != nil {
		logger.Error().Err(err).Msg("complete failed")
		r.fail(id, fmt.Sprintf("無法寫入結果：%v", err))
		return
	}
	logger.Info().Str("provider", providerName).Msg("job completed")
}

func (r *Runner) fail(id, msg string) {
	if _, err := r.store.Fail(id, msg); err != nil {
		r.logger.Error().Err(err).Str("job_id", id).Msg("fail transition failed")
	}
}
