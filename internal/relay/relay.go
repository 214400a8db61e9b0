// Package relay runs the fetch -> format -> post -> mark-read pass over unread voicemails.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/vm-relay/internal/format"
	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/jmehdipour/vm-relay/internal/metrics"
	"github.com/jmehdipour/vm-relay/internal/model"
	"github.com/jmehdipour/vm-relay/internal/ringcentral"
	"github.com/jmehdipour/vm-relay/internal/util"
	"github.com/jmehdipour/vm-relay/internal/webhook"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Provider is the message-store side of the pass; *ringcentral.Client implements it.
type Provider interface {
	Authenticate(ctx context.Context) (*oauth2.Token, error)
	ListUnreadVoicemails(ctx context.Context, since time.Time) ([]model.Voicemail, error)
	GetMessage(ctx context.Context, id model.MessageID) (model.Voicemail, error)
	Transcription(ctx context.Context, v model.Voicemail) (string, error)
	MarkRead(ctx context.Context, id model.MessageID) error
}

// Claims guards against overlapping runs posting the same message.
type Claims interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

type Journal interface {
	Insert(ctx context.Context, tx *sqlx.Tx, d model.Delivery) error
}

type Publisher interface {
	Publish(ctx context.Context, env model.Envelope) error
}

// Relay:
// - lists unread voicemails on one extension,
// - posts each one to the webhook, oldest first,
// - marks it read only after the webhook accepted it.
type Relay struct {
	// Dependencies
	Provider Provider
	Poster   webhook.Poster
	Claims   Claims    // optional
	Journal  Journal   // optional
	Events   Publisher // optional

	// Behavior
	Extension string
	DaysBack  int // 0 = no dateFrom filter
	Format    format.Options
	Now       func() time.Time
	Log       *zap.Logger

	mu      sync.Mutex
	last    Pass
	started time.Time // start of the pass in progress, zero between passes
}

// Summary counts what one pass did. Failed includes messages posted but not marked read.
type Summary struct {
	RunID   string        `json:"run_id"`
	Found   int           `json:"found"`
	Posted  int           `json:"posted"`
	Acked   int           `json:"acked"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Elapsed time.Duration `json:"elapsed"`
}

// Pass is the outcome of the most recent pass, for health reporting.
type Pass struct {
	Summary  Summary   `json:"summary"`
	Err      string    `json:"error,omitempty"`
	Finished time.Time `json:"finished"`
}

// New builds a relay with sane defaults.
func New(p Provider, poster webhook.Poster, extension string) *Relay {
	return &Relay{
		Provider:  p,
		Poster:    poster,
		Extension: extension,
		DaysBack:  14,
		Now:       time.Now,
	}
}

func (r *Relay) log() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logger.Log
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// LastPass returns the outcome of the most recent RunOnce.
func (r *Relay) LastPass() Pass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Running reports whether a pass is in progress and when it started.
func (r *Relay) Running() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, !r.started.IsZero()
}

// RunOnce performs one pass. It returns an error only for failures that stop the
// whole pass (auth, listing, cancellation); per-message failures are counted in the
// summary and leave the message unread for the next pass.
func (r *Relay) RunOnce(ctx context.Context) (sum Summary, err error) {
	start := r.now()
	sum.RunID = util.New()
	log := r.log().With(zap.String("run_id", sum.RunID), zap.String("extension", r.Extension))

	r.mu.Lock()
	r.started = start
	r.mu.Unlock()

	defer func() {
		sum.Elapsed = r.now().Sub(start)
		metrics.PassDuration.Observe(sum.Elapsed.Seconds())
		pass := Pass{Summary: sum, Finished: r.now()}
		if err != nil {
			pass.Err = err.Error()
		} else {
			metrics.LastSuccess.SetToCurrentTime()
		}
		r.mu.Lock()
		r.last = pass
		r.started = time.Time{}
		r.mu.Unlock()
	}()

	if _, err := r.Provider.Authenticate(ctx); err != nil {
		countError(err)
		return sum, fmt.Errorf("authenticate: %w", err)
	}

	var since time.Time
	if r.DaysBack > 0 {
		since = start.AddDate(0, 0, -r.DaysBack)
	}
	list, err := r.Provider.ListUnreadVoicemails(ctx, since)
	if err != nil {
		countError(err)
		return sum, fmt.Errorf("list unread voicemails: %w", err)
	}

	// oldest first so the channel reads in the order the calls came in
	sort.SliceStable(list, func(i, j int) bool { return olderThan(list[i], list[j]) })

	sum.Found = len(list)
	metrics.MessagesTotal.WithLabelValues("found").Add(float64(len(list)))
	log.Info("relay: pass started", zap.Int("unread", len(list)))

	for _, v := range list {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := r.relayOne(ctx, log, sum.RunID, v, &sum); err != nil && ringcentral.IsAuth(err) {
			return sum, fmt.Errorf("relay %s: %w", v.ID, err)
		}
	}

	log.Info("relay: pass finished",
		zap.Int("found", sum.Found),
		zap.Int("posted", sum.Posted),
		zap.Int("acked", sum.Acked),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// relayOne moves one message from Unread to Read. Any error leaves it unread.
func (r *Relay) relayOne(ctx context.Context, log *zap.Logger, runID string, v model.Voicemail, sum *Summary) error {
	id := v.ID.String()
	log = log.With(zap.String("message_id", id))

	if r.Claims != nil {
		ok, err := r.Claims.Claim(ctx, id)
		switch {
		case err != nil:
			log.Warn("relay: dedup claim failed, relaying without it", zap.Error(err))
		case !ok:
			sum.Skipped++
			metrics.MessagesTotal.WithLabelValues("skipped").Inc()
			log.Info("relay: message claimed by another run, skipping")
			return nil
		}
	}

	fail := func(stage string, err error) error {
		sum.Failed++
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		countError(err)
		log.Error("relay: message failed", zap.String("stage", stage), zap.Error(err))
		return err
	}
	release := func() {
		if r.Claims == nil {
			return
		}
		if err := r.Claims.Release(ctx, id); err != nil {
			log.Warn("relay: release claim", zap.Error(err))
		}
	}

	full, err := r.Provider.GetMessage(ctx, v.ID)
	if err != nil {
		release()
		return fail("get", err)
	}
	v = v.Merge(full)

	if v.Read() {
		// read elsewhere between listing and now
		release()
		sum.Skipped++
		metrics.MessagesTotal.WithLabelValues("skipped").Inc()
		log.Info("relay: message already read, skipping")
		return nil
	}

	text, err := r.Provider.Transcription(ctx, v)
	if err != nil {
		release()
		return fail("transcription", err)
	}
	v.Transcription = text

	payload := format.Format(r.Extension, v, r.Format)

	if err := r.Poster.Post(ctx, payload); err != nil {
		release()
		r.record(ctx, log, runID, v, model.StatusFailed, err)
		return fail("post", err)
	}
	sum.Posted++
	metrics.MessagesTotal.WithLabelValues("posted").Inc()

	// The claim is kept from here on: the webhook already has this voicemail.
	if err := r.Provider.MarkRead(ctx, v.ID); err != nil {
		r.record(ctx, log, runID, v, model.StatusPosted, err)
		return fail("mark-read", err)
	}
	sum.Acked++
	metrics.MessagesTotal.WithLabelValues("acked").Inc()
	r.record(ctx, log, runID, v, model.StatusAcked, nil)

	log.Info("relay: voicemail relayed",
		zap.String("caller", v.CallerNumber()),
		zap.Bool("transcribed", text != ""),
	)
	return nil
}

// record writes the journal row and the relay event. Both are best effort.
func (r *Relay) record(ctx context.Context, log *zap.Logger, runID string, v model.Voicemail, status model.DeliveryStatus, cause error) {
	if r.Journal == nil && r.Events == nil {
		return
	}

	now := r.now().UTC()
	d := model.Delivery{
		ID:           util.New(),
		RunID:        runID,
		MessageID:    v.ID.String(),
		ExtensionID:  r.Extension,
		CallerName:   v.CallerName(),
		CallerNumber: v.CallerNumber(),
		Status:       status,
		CreatedAt:    now,
	}
	if t, ok := v.ReceivedAt(); ok {
		t = t.UTC()
		d.ReceivedAt = &t
	}
	if cause != nil {
		d.Error = cause.Error()
	}

	if r.Journal != nil {
		if err := r.Journal.Insert(ctx, nil, d); err != nil {
			log.Warn("relay: journal insert", zap.Error(err))
		}
	}

	if r.Events != nil && status != model.StatusFailed {
		env := model.Envelope{
			ID:           d.ID,
			RunID:        runID,
			MessageID:    d.MessageID,
			ExtensionID:  d.ExtensionID,
			CallerName:   d.CallerName,
			CallerNumber: d.CallerNumber,
			ReceivedAt:   v.CreationTime,
			Status:       status,
			RelayedAt:    now,
		}
		if err := r.Events.Publish(ctx, env); err != nil {
			log.Warn("relay: publish event", zap.Error(err))
		}
	}
}

func olderThan(a, b model.Voicemail) bool {
	ta, okA := a.ReceivedAt()
	tb, okB := b.ReceivedAt()
	if okA && okB {
		return ta.Before(tb)
	}
	return a.CreationTime < b.CreationTime
}

func countError(err error) {
	var (
		ae *ringcentral.AuthError
		pe *ringcentral.APIError
		de *webhook.DeliveryError
	)
	switch {
	case errors.As(err, &ae):
		metrics.ErrorsTotal.WithLabelValues("auth").Inc()
	case errors.As(err, &pe):
		metrics.ErrorsTotal.WithLabelValues("api").Inc()
	case errors.As(err, &de):
		metrics.ErrorsTotal.WithLabelValues("delivery").Inc()
	}
}
