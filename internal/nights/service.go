package nights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sleepstage-service/internal/sleepstage"

	"github.com/google/uuid"
)

// DefaultSummaryWindowDays is the lookback used by Summary when the caller
// does not pass a positive window.
const DefaultSummaryWindowDays = 7

const (
	// MaxStagingSpan is the longest range a single staging run covers.
	MaxStagingSpan = 7 * 24 * time.Hour

	// MaxEpochs bounds the epoch count of a staging run.
	MaxEpochs = 1 << 20

	// stageAttempts is how often Stage recomputes when samples arrive
	// while it runs.
	stageAttempts = 3
)

var (
	// ErrNotStaged is returned when segments are requested for a night that
	// has not been staged since its last ingestion.
	ErrNotStaged = errors.New("night has not been staged")

	// ErrNoSampleSource is returned by Import when no upstream source is
	// configured.
	ErrNoSampleSource = errors.New("no sample source configured")

	// ErrUpstream wraps failures of the configured SampleSource, including
	// batches it returns that fail validation.
	ErrUpstream = errors.New("sample source failed")

	// ErrInvalidRange is returned by Stage when the resolved range is too
	// long or would produce too many epochs.
	ErrInvalidRange = errors.New("invalid staging range")
)

// SampleSource fetches already-recorded samples for a night from an upstream
// health service.
type SampleSource interface {
	FetchSamples(ctx context.Context, id NightID, from, to time.Time) (SampleBatch, error)
}

// StageOptions overrides the staging range and epoch width. Zero values fall
// back to the night's stored range (or its data extent) and the default
// epoch width.
type StageOptions struct {
	RangeStart *time.Time
	RangeEnd   *time.Time
	EpochWidth time.Duration
}

// Service runs the staging engine over stored nights and delegates storage to
// Repository.
type Service struct {
	repo       Repository
	source     SampleSource
	windowDays int
	now        func() time.Time
}

// NewService returns a Service that uses repo. summaryWindowDays is the
// default lookback for Summary; if <= 0, DefaultSummaryWindowDays is used.
func NewService(repo Repository, summaryWindowDays int) *Service {
	if summaryWindowDays <= 0 {
		summaryWindowDays = DefaultSummaryWindowDays
	}
	return &Service{repo: repo, windowDays: summaryWindowDays, now: time.Now}
}

// WithSampleSource sets the upstream used by Import.
func (s *Service) WithSampleSource(src SampleSource) *Service {
	s.source = src
	return s
}

// CreateNight registers a new night under a random ID.
func (s *Service) CreateNight(ctx context.Context) (NightID, error) {
	id := NightID(uuid.NewString())
	if err := s.repo.CreateNight(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// AddSamples validates b and appends it to the night.
func (s *Service) AddSamples(ctx context.Context, id NightID, b SampleBatch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.repo.AppendSamples(ctx, id, b)
}

// Import pulls samples for [from, to) from the configured SampleSource and
// appends them to the night. It returns the number of records imported.
func (s *Service) Import(ctx context.Context, id NightID, from, to time.Time) (int, error) {
	if s.source == nil {
		return 0, ErrNoSampleSource
	}
	// Fail fast before calling upstream.
	if _, err := s.repo.GetNight(ctx, id); err != nil {
		return 0, err
	}
	b, err := s.source.FetchSamples(ctx, id, from, to)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if err := b.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if err := s.repo.AppendSamples(ctx, id, b); err != nil {
		return 0, err
	}
	return b.Size(), nil
}

// Stage runs the engine over everything ingested for the night and stores
// the resulting segments. If samples are appended while the engine runs,
// the result is discarded and staging is repeated on the new data; after
// stageAttempts tries ErrStaleRevision is returned.
func (s *Service) Stage(ctx context.Context, id NightID, opts StageOptions) ([]sleepstage.Segment, error) {
	width := opts.EpochWidth
	if width <= 0 {
		width = sleepstage.DefaultEpochWidth
	}

	for attempt := 1; ; attempt++ {
		n, err := s.repo.GetNight(ctx, id)
		if err != nil {
			return nil, err
		}

		start, end := resolveRange(n, opts, width)
		if err := checkRange(start, end, width); err != nil {
			return nil, err
		}

		segments := sleepstage.Infer(sleepstage.Input{
			Annotations: n.Samples.Annotations,
			HeartRate:   n.Samples.HeartRate,
			HRV:         n.Samples.HRV,
			Motion:      n.Samples.Motion,
			RangeStart:  start,
			RangeEnd:    end,
			EpochWidth:  width,
		})
		if segments == nil {
			segments = []sleepstage.Segment{}
		}

		err = s.repo.SaveSegments(ctx, id, n.Revision, segments, s.now().UTC())
		if errors.Is(err, ErrStaleRevision) && attempt < stageAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return segments, nil
	}
}

// checkRange rejects ranges longer than MaxStagingSpan or finer than
// MaxEpochs epochs. Empty and inverted ranges pass; they stage to nothing.
func checkRange(start, end time.Time, width time.Duration) error {
	if !start.Before(end) {
		return nil
	}
	// Sub saturates, so ranges beyond the Duration limit still compare as too long.
	span := end.Sub(start)
	if span > MaxStagingSpan {
		return fmt.Errorf("%w: span %s exceeds %s", ErrInvalidRange, span, MaxStagingSpan)
	}
	if span/width >= MaxEpochs {
		return fmt.Errorf("%w: %s at %s epochs exceeds %d epochs", ErrInvalidRange, span, width, MaxEpochs)
	}
	return nil
}

// resolveRange picks the staging range: explicit options first, then the
// range stored with the samples, then the extent of the data. A night with
// no data resolves to an empty range.
func resolveRange(n *Night, opts StageOptions, width time.Duration) (time.Time, time.Time) {
	if opts.RangeStart != nil && opts.RangeEnd != nil {
		return *opts.RangeStart, *opts.RangeEnd
	}
	if n.Samples.RangeStart != nil && n.Samples.RangeEnd != nil {
		return *n.Samples.RangeStart, *n.Samples.RangeEnd
	}
	start, end, ok := n.dataExtent(width)
	if !ok {
		return time.Time{}, time.Time{}
	}
	return start, end
}

// Segments returns the stored staging result for a night.
func (s *Service) Segments(ctx context.Context, id NightID) ([]sleepstage.Segment, error) {
	n, err := s.repo.GetNight(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.Staged() {
		return nil, ErrNotStaged
	}
	return n.Segments, nil
}

// Summary aggregates the staged segments of every night over the last
// windowDays days. windowDays <= 0 selects the service default.
func (s *Service) Summary(ctx context.Context, windowDays int) (Summary, error) {
	if windowDays <= 0 {
		windowDays = s.windowDays
	}
	all, err := s.repo.ListNights(ctx)
	if err != nil {
		return Summary{}, err
	}
	var segments []sleepstage.Segment
	for _, n := range all {
		segments = append(segments, n.Segments...)
	}
	return BuildSummary(segments, s.now(), windowDays), nil
}

// NightCount returns the number of stored nights.
func (s *Service) NightCount(ctx context.Context) (int, error) {
	return s.repo.NightCount(ctx)
}
