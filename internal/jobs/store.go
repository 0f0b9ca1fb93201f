package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"cardforge/internal/infra"
	"cardforge/internal/storage"
)

// Job directory layout. Filenames are fixed; the record stores them anyway so
// directories stay self-describing.
const (
	metaFile      = "meta.json"
	inputFile     = "input.txt"
	streamFile    = "stream.log"
	rawFile       = "raw.txt"
	resultFile    = "result.json"
	baseImageFile = "base_image.png"
	cardFile      = "card.png"
)

// Store provides durable create/read/update of job records and their
// artifact files. There is no in-memory cache: every operation goes through
// stable storage, so state survives a process restart. Exactly one writer
// (the owning runner goroutine) mutates a given job id at a time; readers
// tolerate observing a record mid-update.
type Store struct {
	fs      *storage.FileStore
	keepMax int
	logger  infra.Logger
}

// NewStore opens (creating when needed) the jobs root directory. keepMax
// bounds the number of retained job directories and is clamped to at least 1.
func NewStore(dir string, keepMax int, logger infra.Logger) (*Store, error) {
	fs, err := storage.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	if keepMax < 1 {
		keepMax = 1
	}
	return &Store{fs: fs, keepMax: keepMax, logger: logger}, nil
}

func jobKey(id, filename string) string {
	return id + "/" + filename
}

func (s *Store) readMeta(id string) (*Record, error) {
	data, err := s.fs.Read(jobKey(id, metaFile))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: read meta: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("jobs: parse meta for %s: %w", id, err)
	}
	return &rec, nil
}

// writeMeta persists the record, refreshing updated_at. The record update is
// always the last write of a phase so readers never observe a file
// reference before its file.
func (s *Store) writeMeta(rec *Record) error {
	rec.UpdatedAt = utcNow()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("jobs: marshal meta: %w", err)
	}
	if err := s.fs.Write(jobKey(rec.ID, metaFile), data); err != nil {
		return fmt.Errorf("jobs: write meta: %w", err)
	}
	return nil
}

// Create allocates a new job directory with the input payload, an empty
// stream log, an optional base image, and the initial pending record, then
// runs the retention policy.
func (s *Store) Create(provider, payload string, baseImage []byte) (*Record, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.fs.Write(jobKey(id, inputFile), []byte(payload)); err != nil {
		return nil, err
	}
	if err := s.fs.Write(jobKey(id, streamFile), nil); err != nil {
		return nil, err
	}

	now := utcNow()
	rec := &Record{
		ID:             id,
		Provider:       provider,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		StreamFilename: streamFile,
		InputFilename:  inputFile,
	}
	if len(baseImage) > 0 {
		if err := s.fs.Write(jobKey(id, baseImageFile), baseImage); err != nil {
			return nil, err
		}
		name := baseImageFile
		rec.BaseImageFilename = &name
	}
	if err := s.writeMeta(rec); err != nil {
		return nil, err
	}
	s.housekeep()
	return rec, nil
}

// MarkRunning transitions a pending job to running, setting started_at on
// first entry. Re-marking a running job is a no-op, and a terminal record is
// returned unchanged so a finished job can never be revived.
func (s *Store) MarkRunning(id string) (*Record, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusRunning || rec.Status.Terminal() {
		return rec, nil
	}
	rec.Status = StatusRunning
	if rec.StartedAt == nil {
		now := utcNow()
		rec.StartedAt = &now
	}
	if err := s.writeMeta(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AppendStream adds partial output to the job's stream log without touching
// the record. Empty text is a no-op.
func (s *Store) AppendStream(id, text string) error {
	if text == "" {
		return nil
	}
	if _, err := s.readMeta(id); err != nil {
		return err
	}
	return s.fs.Append(jobKey(id, streamFile), []byte(text))
}

// Complete writes the raw output, the normalized result, and the optional
// embedded card image, then marks the job completed with its usage counters.
func (s *Store) Complete(id, rawOutput string, result any, usage map[string]float64, pngBytes []byte) (*Record, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal result: %w", err)
	}
	if err := s.fs.Write(jobKey(id, rawFile), []byte(rawOutput)); err != nil {
		return nil, err
	}
	if err := s.fs.Write(jobKey(id, resultFile), resultJSON); err != nil {
		return nil, err
	}
	if len(pngBytes) > 0 {
		if err := s.fs.Write(jobKey(id, cardFile), pngBytes); err != nil {
			return nil, err
		}
		name := cardFile
		rec.PNGFilename = &name
	}

	now := utcNow()
	rec.Status = StatusCompleted
	rec.CompletedAt = &now
	rec.Error = nil
	rec.TokenUsage = usage
	raw := rawFile
	res := resultFile
	rec.RawFilename = &raw
	rec.ResultFilename = &res
	if err := s.writeMeta(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Fail marks the job failed with a descriptive message.
func (s *Store) Fail(id, errMsg string) (*Record, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	now := utcNow()
	rec.Status = StatusFailed
	rec.CompletedAt = &now
	rec.Error = &errMsg
	if err := s.writeMeta(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Meta returns the current record for a job.
func (s *Store) Meta(id string) (*Record, error) {
	return s.readMeta(id)
}

// ReadInput returns the submitted payload text.
func (s *Store) ReadInput(id string) (string, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return "", err
	}
	data, err := s.fs.Read(jobKey(id, rec.InputFilename))
	if errors.Is(err, storage.ErrNotExist) {
		return "", fmt.Errorf("%w: input for job %s", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadStream returns the full stream log contents and its current size.
func (s *Store) ReadStream(id string) (string, int64, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return "", 0, err
	}
	key := jobKey(id, rec.StreamFilename)
	data, err := s.fs.Read(key)
	if errors.Is(err, storage.ErrNotExist) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return string(data), int64(len(data)), nil
}

// ReadStreamChunk returns the bytes appended since offset plus the offset to
// resume from. Reading from a previously returned offset never re-delivers
// old bytes.
func (s *Store) ReadStreamChunk(id string, offset int64) (string, int64, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return "", offset, err
	}
	data, next, err := s.fs.ReadFrom(jobKey(id, rec.StreamFilename), offset)
	if err != nil {
		return "", offset, err
	}
	return string(data), next, nil
}

// ReadResult returns the normalized result document, or nil when the job has
// not produced one.
func (s *Store) ReadResult(id string) (json.RawMessage, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	if rec.ResultFilename == nil {
		return nil, nil
	}
	data, err := s.fs.Read(jobKey(id, *rec.ResultFilename))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// ReadRaw returns the unparsed backend output, or nil when absent.
func (s *Store) ReadRaw(id string) (*string, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	if rec.RawFilename == nil {
		return nil, nil
	}
	data, err := s.fs.Read(jobKey(id, *rec.RawFilename))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	text := string(data)
	return &text, nil
}

// ReadBaseImage returns the uploaded base image bytes, or nil when the
// submission carried none.
func (s *Store) ReadBaseImage(id string) ([]byte, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	if rec.BaseImageFilename == nil {
		return nil, nil
	}
	data, err := s.fs.Read(jobKey(id, *rec.BaseImageFilename))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadCardImage returns the embedded card image bytes, or nil when the job
// completed without one.
func (s *Store) ReadCardImage(id string) ([]byte, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	if rec.PNGFilename == nil {
		return nil, nil
	}
	data, err := s.fs.Read(jobKey(id, *rec.PNGFilename))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ResultPath returns the on-disk path of the result document, or "" when
// absent. Used for file downloads.
func (s *Store) ResultPath(id string) (string, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return "", err
	}
	if rec.ResultFilename == nil {
		return "", nil
	}
	key := jobKey(id, *rec.ResultFilename)
	if !s.fs.Exists(key) {
		return "", nil
	}
	return s.fs.Path(key)
}

// CardPath returns the on-disk path of the embedded card image, or "" when
// absent.
func (s *Store) CardPath(id string) (string, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return "", err
	}
	if rec.PNGFilename == nil {
		return "", nil
	}
	key := jobKey(id, *rec.PNGFilename)
	if !s.fs.Exists(key) {
		return "", nil
	}
	return s.fs.Path(key)
}

// Detail aggregates the record and every readable artifact for presentation.
func (s *Store) Detail(id string) (*Detail, error) {
	rec, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	streamText, streamOffset, err := s.ReadStream(id)
	if err != nil {
		return nil, err
	}
	inputText, err := s.ReadInput(id)
	if err != nil {
		return nil, err
	}
	result, err := s.ReadResult(id)
	if err != nil {
		return nil, err
	}
	raw, err := s.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	cardPath, err := s.CardPath(id)
	if err != nil {
		return nil, err
	}
	detail := &Detail{
		Meta:         rec,
		InputText:    inputText,
		StreamText:   streamText,
		StreamOffset: streamOffset,
		RawOutput:    raw,
		PNGAvailable: cardPath != "",
	}
	if result != nil {
		detail.Result = result
	}
	return detail, nil
}

// ListJobs scans every job directory and partitions the parseable records by
// terminal-ness, newest first. Corrupt or unreadable directories are skipped.
func (s *Store) ListJobs() (*List, error) {
	ids, err := s.fs.ListDirs()
	if err != nil {
		return nil, fmt.Errorf("jobs: scan: %w", err)
	}
	var metas []*Record
	for _, id := range ids {
		rec, err := s.readMeta(id)
		if err != nil {
			continue
		}
		metas = append(metas, rec)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	out := &List{InProgress: []*Record{}, Completed: []*Record{}}
	for _, rec := range metas {
		if rec.Status.Terminal() {
			out.Completed = append(out.Completed, rec)
		} else {
			out.InProgress = append(out.InProgress, rec)
		}
	}
	return out, nil
}
