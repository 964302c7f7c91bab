// Package form runs the multi-step admin forms that create and edit catalog offers.
//
// Each user has at most one session. Starting a flow while another is in progress
// replaces the old session; its draft is discarded.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offerledger_form_sessions_active",
		Help: "Form sessions currently in progress",
	})
	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerledger_form_commits_total",
		Help: "Form sessions that ended, labeled by flow and outcome",
	}, []string{"flow", "outcome"})
)

// Catalog is the part of the catalog store the engine writes to.
type Catalog interface {
	Exists(name string) bool
	Create(ctx context.Context, name string, o domain.Offer) error
	Update(ctx context.Context, name string, fn func(*domain.Offer) error) (domain.Offer, error)
}

// Signal is an explicit control input.
type Signal int

const (
	SignalNone Signal = iota
	SignalSkip
	SignalCancel
	SignalBack
)

// Input is one inbound event routed to a session.
type Input struct {
	Signal      Signal
	Text        string
	PhotoRef    string
	DocumentRef string
}

// Outcome tells the caller what a Begin or Step did.
type Outcome int

const (
	// OutcomePrompt: the session is waiting on Reply.Stage.
	OutcomePrompt Outcome = iota + 1
	// OutcomeReprompt: the input was rejected; stage and draft are unchanged.
	OutcomeReprompt
	OutcomeCommitted
	OutcomeCancelled
	// OutcomeConflict: a create lost the name to a concurrent commit. Nothing was written.
	OutcomeConflict
	// OutcomeNotFound: the offer being edited no longer exists.
	OutcomeNotFound
	OutcomeExpired
	OutcomeNoSession
)

func (o Outcome) String() string {
	switch o {
	case OutcomePrompt:
		return "prompt"
	case OutcomeReprompt:
		return "reprompt"
	case OutcomeCommitted:
		return "committed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeNoSession:
		return "no_session"
	}
	return "unknown"
}

// Reply is the engine's answer to an input.
type Reply struct {
	Outcome Outcome
	Text    string
	Stage   Stage
	Offer   domain.Offer
}

// Done reports whether the session ended (or never existed).
func (r Reply) Done() bool {
	return r.Outcome != OutcomePrompt && r.Outcome != OutcomeReprompt
}

// Session is one in-progress flow.
type Session struct {
	ID        string
	UserID    int64
	Kind      Kind
	Field     Field
	Target    string
	Stage     Stage
	Draft     Draft
	StartedAt time.Time
	UpdatedAt time.Time

	step   int
	stages []StageSpec
}

type slot struct {
	mu      sync.Mutex
	session *Session
	// dead is set once the slot has been removed from the engine's map.
	dead bool
}

// Engine owns every user's form session.
type Engine struct {
	catalog Catalog
	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger

	mu    sync.Mutex
	slots map[int64]*slot
}

// NewEngine creates an engine. A zero ttl disables idle expiry.
func NewEngine(catalog Catalog, ttl time.Duration, log logrus.FieldLogger) *Engine {
	return &Engine{
		catalog: catalog,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
		slots:   make(map[int64]*slot),
	}
}

func (e *Engine) slot(userID int64, create bool) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	sl, ok := e.slots[userID]
	if !ok && create {
		sl = &slot{}
		e.slots[userID] = sl
	}
	return sl
}

// acquire returns userID's slot locked, or nil when there is none and create is
// false. A slot pruned between lookup and lock is looked up again.
func (e *Engine) acquire(userID int64, create bool) *slot {
	for {
		sl := e.slot(userID, create)
		if sl == nil {
			return nil
		}
		sl.mu.Lock()
		if !sl.dead {
			return sl
		}
		sl.mu.Unlock()
	}
}

// Active reports whether userID has a session in progress.
func (e *Engine) Active(userID int64) bool {
	sl := e.acquire(userID, false)
	if sl == nil {
		return false
	}
	defer sl.mu.Unlock()
	return sl.session != nil
}

// Session returns a copy of userID's current session.
func (e *Engine) Session(userID int64) (Session, bool) {
	sl := e.acquire(userID, false)
	if sl == nil {
		return Session{}, false
	}
	defer sl.mu.Unlock()
	if sl.session == nil {
		return Session{}, false
	}
	return *sl.session, true
}

// Begin starts a flow for userID. target names the offer for KindEditOffer and is
// ignored for KindCreateOffer.
func (e *Engine) Begin(ctx context.Context, userID int64, kind Kind, field Field, target string) (Reply, error) {
	var stages []StageSpec
	switch kind {
	case KindCreateOffer:
		stages = createFlow(e.catalog.Exists)
		target, field = "", 0
	case KindEditOffer:
		stages = editFlow(field)
		if stages == nil {
			return Reply{}, fmt.Errorf("unknown edit field %d", field)
		}
		if !e.catalog.Exists(target) {
			return Reply{Outcome: OutcomeNotFound, Text: notFoundText(target)}, nil
		}
	default:
		return Reply{}, fmt.Errorf("unknown flow kind %d", kind)
	}

	sl := e.acquire(userID, true)
	defer sl.mu.Unlock()

	now := e.now()
	if old := sl.session; old != nil {
		e.log.WithFields(logrus.Fields{"user_id": userID, "session_id": old.ID, "flow": old.Kind.String()}).
			Info("form session replaced")
		e.end(sl, OutcomeCancelled)
	}
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Field:     field,
		Target:    target,
		Stage:     stages[0].Stage,
		StartedAt: now,
		UpdatedAt: now,
		stages:    stages,
	}
	sl.session = s
	sessionsActive.Inc()

	e.log.WithFields(logrus.Fields{"user_id": userID, "session_id": s.ID, "flow": kind.String(), "target": target}).
		Debug("form session started")
	return Reply{Outcome: OutcomePrompt, Text: stages[0].Prompt, Stage: s.Stage}, nil
}

// Step feeds one input to userID's session. A persistence failure at commit is
// returned as an error and leaves the session on its last stage, so resending the
// final input retries the commit.
func (e *Engine) Step(ctx context.Context, userID int64, in Input) (Reply, error) {
	sl := e.acquire(userID, false)
	if sl == nil {
		return Reply{Outcome: OutcomeNoSession}, nil
	}
	defer sl.mu.Unlock()

	s := sl.session
	if s == nil {
		return Reply{Outcome: OutcomeNoSession}, nil
	}
	now := e.now()
	if e.expired(s, now) {
		e.end(sl, OutcomeExpired)
		return Reply{Outcome: OutcomeExpired, Text: expiredText}, nil
	}
	s.UpdatedAt = now

	switch in.Signal {
	case SignalCancel:
		kind := s.Kind
		e.end(sl, OutcomeCancelled)
		return Reply{Outcome: OutcomeCancelled, Text: cancelText(kind)}, nil
	case SignalBack:
		if s.step > 0 {
			s.step--
			s.Stage = s.stages[s.step].Stage
		}
		return Reply{Outcome: OutcomePrompt, Text: s.stages[s.step].Prompt, Stage: s.Stage}, nil
	}

	spec := s.stages[s.step]
	var value string
	if in.Signal == SignalSkip {
		if !spec.Skippable {
			return Reply{Outcome: OutcomeReprompt, Text: spec.Mismatch, Stage: s.Stage}, nil
		}
	} else {
		v, ok := spec.accept(in)
		if !ok {
			return Reply{Outcome: OutcomeReprompt, Text: spec.Mismatch, Stage: s.Stage}, nil
		}
		if spec.Validate != nil {
			if err := spec.Validate(v); err != nil {
				return Reply{Outcome: OutcomeReprompt, Text: validationText(err, spec), Stage: s.Stage}, nil
			}
		}
		value = v
	}

	draft := s.Draft
	spec.Assign(&draft, value)

	if s.step+1 < len(s.stages) {
		s.Draft = draft
		s.step++
		s.Stage = s.stages[s.step].Stage
		return Reply{Outcome: OutcomePrompt, Text: s.stages[s.step].Prompt, Stage: s.Stage}, nil
	}
	return e.commit(ctx, sl, draft)
}

func (e *Engine) commit(ctx context.Context, sl *slot, draft Draft) (Reply, error) {
	s := sl.session
	entry := e.log.WithFields(logrus.Fields{"user_id": s.UserID, "session_id": s.ID, "flow": s.Kind.String()})

	switch s.Kind {
	case KindCreateOffer:
		offer := draft.Offer()
		err := e.catalog.Create(ctx, draft.Name, offer)
		if errors.Is(err, store.ErrOfferExists) {
			entry.WithField("offer", draft.Name).Warn("offer name taken at commit")
			e.end(sl, OutcomeConflict)
			return Reply{Outcome: OutcomeConflict, Text: fmt.Sprintf("❗ Offer '%s' was added by someone else in the meantime. Nothing was saved.", draft.Name)}, nil
		}
		if err != nil {
			return Reply{}, fmt.Errorf("commit offer %q: %w", draft.Name, err)
		}
		entry.WithField("offer", draft.Name).Info("offer created")
		e.end(sl, OutcomeCommitted)
		return Reply{Outcome: OutcomeCommitted, Text: fmt.Sprintf("✅ Offer '%s' added!", draft.Name), Offer: offer}, nil

	case KindEditOffer:
		field, target := s.Field, s.Target
		updated, err := e.catalog.Update(ctx, target, func(o *domain.Offer) error {
			draft.apply(field, o)
			return nil
		})
		if errors.Is(err, store.ErrOfferNotFound) {
			e.end(sl, OutcomeNotFound)
			return Reply{Outcome: OutcomeNotFound, Text: notFoundText(target)}, nil
		}
		if err != nil {
			return Reply{}, fmt.Errorf("commit %s of offer %q: %w", field, target, err)
		}
		entry.WithFields(logrus.Fields{"offer": target, "field": field.String()}).Info("offer updated")
		e.end(sl, OutcomeCommitted)
		return Reply{Outcome: OutcomeCommitted, Text: editedText(field, updated), Offer: updated}, nil
	}
	return Reply{}, fmt.Errorf("unknown flow kind %d", s.Kind)
}

// Cancel drops userID's session without committing. It reports whether one existed.
func (e *Engine) Cancel(userID int64) bool {
	sl := e.acquire(userID, false)
	if sl == nil {
		return false
	}
	defer sl.mu.Unlock()
	if sl.session == nil {
		return false
	}
	e.end(sl, OutcomeCancelled)
	return true
}

// Expire drops sessions idle for longer than the ttl and returns how many it dropped.
// Users left without a session lose their slot.
func (e *Engine) Expire(now time.Time) int {
	if e.ttl <= 0 {
		e.prune()
		return 0
	}
	e.mu.Lock()
	slots := make([]*slot, 0, len(e.slots))
	for _, sl := range e.slots {
		slots = append(slots, sl)
	}
	e.mu.Unlock()

	n := 0
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.session != nil && e.expired(sl.session, now) {
			e.log.WithFields(logrus.Fields{"user_id": sl.session.UserID, "session_id": sl.session.ID}).
				Info("form session expired")
			e.end(sl, OutcomeExpired)
			n++
		}
		sl.mu.Unlock()
	}
	e.prune()
	return n
}

// prune drops slots without a session. Slots busy with another call are left for
// the next sweep.
func (e *Engine) prune() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, sl := range e.slots {
		if !sl.mu.TryLock() {
			continue
		}
		if sl.session == nil {
			sl.dead = true
			delete(e.slots, id)
		}
		sl.mu.Unlock()
	}
}

func (e *Engine) expired(s *Session, now time.Time) bool {
	return e.ttl > 0 && now.Sub(s.UpdatedAt) > e.ttl
}

// end clears the slot's session. Callers hold sl.mu.
func (e *Engine) end(sl *slot, outcome Outcome) {
	s := sl.session
	if s == nil {
		return
	}
	sl.session = nil
	sessionsActive.Dec()
	sessionsEnded.WithLabelValues(s.Kind.String(), outcome.String()).Inc()
}

const expiredText = "⌛ The session expired. Start again from the admin panel."

func cancelText(kind Kind) string {
	if kind == KindCreateOffer {
		return "Adding cancelled."
	}
	return "Editing cancelled."
}

func notFoundText(name string) string {
	return fmt.Sprintf("Offer '%s' was not found.", name)
}

func validationText(err error, spec StageSpec) string {
	switch {
	case errors.Is(err, errNameEmpty):
		return promptNameEmpty
	case errors.Is(err, errNameTaken):
		return promptNameTaken
	case errors.Is(err, errNameLong):
		return promptNameLong
	}
	return spec.Prompt
}

func editedText(field Field, o domain.Offer) string {
	switch field {
	case FieldText:
		return "✅ Text updated."
	case FieldImage:
		return "✅ Image updated."
	case FieldFile:
		return "✅ File updated."
	case FieldButton:
		if o.ButtonLabel != "" && o.ButtonURL == "" {
			return "✅ Button updated (label only, no link)."
		}
		return "✅ Button updated."
	}
	return "✅ Updated."
}
