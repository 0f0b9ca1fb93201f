package jobs

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"cardforge/internal/pngtext"
	"cardforge/internal/providers/llm"
)

const rawCardOutput = "```json\n" + `{
	"name": "測試角色",
	"description": "描述",
	"personality": "個性",
	"scenario": "場景",
	"first_mes": "第一句話",
	"mes_example": "",
	"creator_notes": "",
	"system_prompt": "",
	"post_history_instructions": "",
	"creator": "cardforge",
	"character_version": "1.0",
	"tags": [],
	"alternate_greetings": [],
	"character_book": null,
	"extensions": {}
}` + "\n```"

type stubGenerator struct {
	generate func(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error)
}

func (s *stubGenerator) Generate(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error) {
	return s.generate(ctx, payload, onStream)
}

func newTestRunner(store *Store, gen llm.Generator) *Runner {
	registry := llm.Registry{llm.ProviderOpenAI: gen}
	return NewRunner(store, registry, zerolog.Nop())
}

func TestRunnerHappyPath(t *testing.T) {
	store := newTestStore(t, 10)
	gen := &stubGenerator{generate: func(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error) {
		if payload != "hello" {
			t.Errorf("payload = %q, want hello", payload)
		}
		onStream("AB")
		onStream("CD")
		return rawCardOutput, llm.Usage{"tokens": 5}, nil
	}}

	rec, err := store.Create("a", "hello", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	newTestRunner(store, gen).Run(rec.ID)

	done, err := store.Meta(rec.ID)
	if err != nil {
		t.Fatalf("Meta returned error: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed (error=%v)", done.Status, done.Error)
	}
	if done.TokenUsage["tokens"] != 5 {
		t.Fatalf("TokenUsage = %v", done.TokenUsage)
	}
	if done.ResultFilename == nil {
		t.Fatal("result reference missing")
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Fatal("timestamps missing")
	}
	if done.CompletedAt.Before(*done.StartedAt) {
		t.Fatal("completed_at precedes started_at")
	}

	stream, _, err := store.ReadStream(rec.ID)
	if err != nil {
		t.Fatalf("ReadStream returned error: %v", err)
	}
	if stream != "ABCD" {
		t.Fatalf("stream = %q, want ABCD", stream)
	}

	// Without an uploaded base image the built-in one is used, so the
	// embedded card must exist and round-trip.
	img, err := store.ReadCardImage(rec.ID)
	if err != nil {
		t.Fatalf("ReadCardImage returned error: %v", err)
	}
	if len(img) == 0 {
		t.Fatal("card image missing")
	}
	payload, err := pngtext.Extract(img)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !strings.Contains(string(payload), "測試角色") {
		t.Fatalf("embedded payload = %s", payload)
	}
}

func TestRunnerGeneratorFailure(t *testing.T) {
	store := newTestStore(t, 10)
	gen := &stubGenerator{generate: func(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error) {
		return "", nil, context.DeadlineExceeded
	}}

	rec, _ := store.Create("openai", "hello", nil)
	newTestRunner(store, gen).Run(rec.ID)

	done, err := store.Meta(rec.ID)
	if err != nil {
		t.Fatalf("Meta returned error: %v", err)
	}
	if done.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", done.Status)
	}
	if done.Error == nil || !strings.Contains(*done.Error, "呼叫失敗") {
		t.Fatalf("Error = %v", done.Error)
	}
}

func TestRunnerMalformedOutput(t *testing.T) {
	store := newTestStore(t, 10)
	gen := &stubGenerator{generate: func(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error) {
		return "這不是 JSON", nil, nil
	}}

	rec, _ := store.Create("openai", "hello", nil)
	newTestRunner(store, gen).Run(rec.ID)

	done, _ := store.Meta(rec.ID)
	if done.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", done.Status)
	}
	if done.Error == nil || !strings.Contains(*done.Error, "格式不正確") {
		t.Fatalf("Error = %v", done.Error)
	}
}

func TestRunnerEmbedFailureIsNonFatal(t *testing.T) {
	store := newTestStore(t, 10)
	gen := &stubGenerator{generate: func(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error) {
		return rawCardOutput, nil, nil
	}}

	// An uploaded base image that is not a PNG breaks embedding, which must
	// downgrade the job instead of failing it.
	rec, _ := store.Create("openai", "hello", []byte("GIF89a not a png"))
	newTestRunner(store, gen).Run(rec.ID)

	done, _ := store.Meta(rec.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed (error=%v)", done.Status, done.Error)
	}
	if done.PNGFilename != nil {
		t.Fatal("PNGFilename set despite embed failure")
	}
	if done.ResultFilename == nil {
		t.Fatal("result reference missing")
	}
}

func TestRunnerUnknownProviderEntry(t *testing.T) {
	store := newTestStore(t, 10)
	// Empty registry: even the fallback provider resolves to nothing.
	runner := NewRunner(store, llm.Registry{}, zerolog.Nop())

	rec, _ := store.Create("openai", "hello", nil)
	runner.Run(rec.ID)

	done, _ := store.Meta(rec.ID)
	if done.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", done.Status)
	}
}

func TestRunnerPanicBecomesFailed(t *testing.T) {
	store := newTestStore(t, 10)
	gen := &stubGenerator{generate: func(ctx context.Context, payload string, onStream llm.StreamFunc) (string, llm.Usage, error) {
		panic("backend blew up")
	}}

	rec, _ := store.Create("openai", "hello", nil)
	newTestRunner(store, gen).Run(rec.ID)

	done, err := store.Meta(rec.ID)
	if err != nil {
		t.Fatalf("Meta returned error: %v", err)
	}
	if done.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", done.Status)
	}
	if done.Error == nil || !strings.Contains(*done.Error, "內部錯誤") {
		t.Fatalf("Error = %v", done.Error)
	}
}
