package analyzer

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"convanalyzer/internal/logging"
	"convanalyzer/internal/models"
	"convanalyzer/internal/prompt"
	"convanalyzer/internal/service/ai"
)

const (
	DefaultDelay       = 100 * time.Millisecond
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// Cache stores validated classifications keyed by prompt fingerprint.
type Cache interface {
	Load(ctx context.Context, fingerprint string) (*models.Classification, bool)
	Store(ctx context.Context, fingerprint string, cls *models.Classification)
	Invalidate(ctx context.Context, fingerprint string)
}

// RetryPolicy bounds how often a transient provider failure is retried.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int, cause error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.BaseBackoff
	for i := 1; i < attempt && wait > 0; i++ {
		if wait > math.MaxInt64/2 {
			wait = math.MaxInt64
			break
		}
		wait *= 2
		if p.MaxBackoff > 0 && wait >= p.MaxBackoff {
			break
		}
	}
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	var rl *ai.RateLimitError
	if errors.As(cause, &rl) && rl.RetryAfter > wait {
		wait = rl.RetryAfter
	}
	return wait
}

type Option func(*Analyzer)

// WithDelay sets the fixed pause between consecutive model calls.
func WithDelay(d time.Duration) Option {
	return func(a *Analyzer) {
		if d >= 0 {
			a.delay = d
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(a *Analyzer) {
		if p.MaxRetries < 0 {
			p.MaxRetries = 0
		}
		a.retry = p
	}
}

// WithCallTimeout bounds a single model call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.callTimeout = d }
}

func WithCache(c Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithRefresh ignores cached classifications and drops them before asking the model again.
func WithRefresh(refresh bool) Option {
	return func(a *Analyzer) { a.refresh = refresh }
}

func WithLogger(l *logging.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithModelName records the model in the batch and scopes cache keys.
func WithModelName(name string) Option {
	return func(a *Analyzer) { a.model = name }
}

// WithProgress is called after every processed conversation.
func WithProgress(fn func(done, total int)) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// Analyzer classifies conversations one at a time, in input order.
type Analyzer struct {
	completer   ai.Completer
	delay       time.Duration
	retry       RetryPolicy
	callTimeout time.Duration
	cache       Cache
	refresh     bool
	logger      *logging.Logger
	model       string
	progress    func(done, total int)

	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
}

func New(completer ai.Completer, opts ...Option) *Analyzer {
	a := &Analyzer{
		completer: completer,
		delay:     DefaultDelay,
		retry:     DefaultRetryPolicy(),
		logger:    logging.Nop(),
		wait:      sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Batch is the outcome of one Run.
type Batch struct {
	RunID      uuid.UUID       `json:"run_id"`
	Model      string          `json:"model"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []models.Result `json:"results"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
}

// Run processes convs sequentially. A failed conversation becomes an error
// marker and the loop moves on. When ctx is cancelled the results gathered so
// far are returned together with ctx.Err().
func (a *Analyzer) Run(ctx context.Context, convs []models.Conversation) (Batch, error) {
	batch := Batch{
		RunID:     uuid.New(),
		Model:     a.model,
		StartedAt: a.now(),
		Results:   make([]models.Result, 0, len(convs)),
	}
	log := a.logger.WithField("run_id", batch.RunID.String())
	log.Infow("analysis started", "conversations", len(convs), "model", a.model)

	called := false
	for i := range convs {
		if err := ctx.Err(); err != nil {
			return a.finish(batch, log), err
		}
		conv := &convs[i]
		convLog := log.WithField("conversation_id", conv.ID())

		p := prompt.Build(conv)
		fingerprint := prompt.Fingerprint(a.model, p)
		if a.cache != nil && a.refresh {
			a.cache.Invalidate(ctx, fingerprint)
		} else if a.cache != nil {
			if cls, ok := a.cache.Load(ctx, fingerprint); ok {
				convLog.Debugw("classification served from cache")
				batch.Results = append(batch.Results, models.Result{ConversationID: conv.ID(), Classification: cls})
				a.report(i+1, len(convs))
				continue
			}
		}

		if called && a.delay > 0 {
			if err := a.wait(ctx, a.delay); err != nil {
				return a.finish(batch, log), err
			}
		}
		called = true

		raw, err := a.completeWithRetry(ctx, convLog, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return a.finish(batch, log), ctxErr
			}
			convLog.WithError(err).Errorw("model call failed")
			batch.Results = append(batch.Results, failure(conv.ID(), models.ErrorKindProvider, err))
			a.report(i+1, len(convs))
			continue
		}

		cls, err := ParseClassification(raw)
		if err != nil {
			convLog.WithError(err).Warnw("rejected model reply", "reply", truncate(raw, 200))
			batch.Results = append(batch.Results, failure(conv.ID(), models.ErrorKindInvalidResponse, err))
			a.report(i+1, len(convs))
			continue
		}
		if a.cache != nil {
			a.cache.Store(ctx, fingerprint, cls)
		}
		batch.Results = append(batch.Results, models.Result{ConversationID: conv.ID(), Classification: cls})
		a.report(i+1, len(convs))
	}
	return a.finish(batch, log), nil
}

func (a *Analyzer) completeWithRetry(ctx context.Context, log *logging.Logger, p prompt.Prompt) (string, error) {
	for attempt := 0; ; attempt++ {
		raw, err := a.callOnce(ctx, p)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt >= a.retry.MaxRetries || !ai.IsTransient(err) {
			return "", err
		}
		wait := a.retry.Backoff(attempt+1, err)
		log.Warnw("transient model error, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		if werr := a.wait(ctx, wait); werr != nil {
			return "", werr
		}
	}
}

func (a *Analyzer) callOnce(ctx context.Context, p prompt.Prompt) (string, error) {
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}
	return a.completer.Complete(ctx, p)
}

func (a *Analyzer) finish(batch Batch, log *logging.Logger) Batch {
	batch.FinishedAt = a.now()
	batch.Succeeded, batch.Failed = 0, 0
	for i := range batch.Results {
		if batch.Results[i].Failed() {
			batch.Failed++
		} else {
			batch.Succeeded++
		}
	}
	log.Infow("analysis finished",
		"processed", len(batch.Results),
		"succeeded", batch.Succeeded,
		"failed", batch.Failed,
		"elapsed", batch.FinishedAt.Sub(batch.StartedAt))
	return batch
}

func (a *Analyzer) report(done, total int) {
	if a.progress != nil {
		a.progress(done, total)
	}
}

func failure(id string, kind models.ErrorKind, err error) models.Result {
	return models.Result{
		ConversationID: id,
		Error:          &models.ResultError{Kind: kind, Message: err.Error()},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
