// Package workflow runs the posting step library as a sequential state
// machine: every transition is durably persisted before it is reported, hard
// failures become a terminal Error state, and a persisted mid-flow step can
// be resumed by a fresh engine instance after a page navigation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/config"
	"github.com/crosslister/postflow/internal/dom"
	"github.com/crosslister/postflow/internal/humanoid"
	"github.com/crosslister/postflow/internal/report"
	"github.com/crosslister/postflow/internal/retry"
	"github.com/crosslister/postflow/internal/steps"
	"github.com/crosslister/postflow/internal/store"
)

var (
	// ErrAlreadyAttempted is the idempotence signal: a run was already
	// started in this page lifetime and a duplicate request is acknowledged
	// without starting a second run.
	ErrAlreadyAttempted = errors.New("form fill already attempted")
	// ErrLoginRequired means the current page is an authentication page and
	// automation was not started.
	ErrLoginRequired = errors.New("login page detected")
	// ErrRunActive means a run is currently executing; it blocks a Resume
	// from racing a live run.
	ErrRunActive = errors.New("a run is already in flight")
)

// Env bundles the page-bound collaborators a run executes against.
type Env struct {
	Page    dom.Page
	Loc     *dom.Locator
	Wait    *dom.Waiter
	Typist  *humanoid.Typist
	Fetcher *steps.Fetcher
}

// run is the per-attempt state object: guard, flags and current step live
// here rather than in package globals so isolated runs can coexist in tests.
type run struct {
	id      string
	payload schemas.ListingPayload
	flags   *schemas.CompletionFlags
	step    schemas.StepID
	active  bool
}

// Orchestrator owns the state machine for one page context. Only one run may
// be active at a time; the run guard also makes start-fill idempotent for
// the rest of the page lifetime.
type Orchestrator struct {
	log      *zap.Logger
	env      Env
	store    store.StateStore
	reporter report.Reporter
	notifier retry.Notifier
	retrier  *retry.Controller
	lib      map[schemas.StepID]steps.Definition
	platform *steps.Platform
	engine   config.EngineConfig
	pageKey  string
	validate *validator.Validate

	mu  sync.Mutex
	cur *run
}

// New assembles an orchestrator for one page context.
func New(log *zap.Logger, env Env, st store.StateStore, rep report.Reporter, notifier retry.Notifier, platform *steps.Platform, engine config.EngineConfig, pageKey string) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if rep == nil {
		rep = report.NopReporter{}
	}
	if notifier == nil {
		notifier = retry.NopNotifier{}
	}
	return &Orchestrator{
		log:      log.Named("workflow"),
		env:      env,
		store:    st,
		reporter: rep,
		notifier: notifier,
		retrier:  retry.NewController(log, notifier),
		lib:      steps.Library(),
		platform: platform,
		engine:   engine,
		pageKey:  pageKey,
		validate: validator.New(),
	}
}

// Start validates the payload and executes the full posting sequence.
// A second call in the same page lifetime returns ErrAlreadyAttempted
// without running anything.
func (o *Orchestrator) Start(ctx context.Context, payload schemas.ListingPayload) error {
	if err := o.validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid listing payload: %w", err)
	}

	url, login, err := steps.DetectLogin(ctx, o.env.Page, o.platform)
	if err != nil {
		return err
	}
	if login {
		o.reporter.LoginDetected(ctx, schemas.LoginDetectedEvent{
			Platform: o.platform.Name, URL: url,
		})
		return ErrLoginRequired
	}

	r, err := o.beginRun(payload, false)
	if err != nil {
		return err
	}
	defer o.endRun(r)

	// A new run resets the durable state to Idle before the first step.
	if err := o.persist(ctx, r, schemas.StepIdle, nil); err != nil {
		return err
	}
	return o.execute(ctx, r, schemas.Sequence())
}

// Resume continues a run from a persisted mid-flow step, executing exactly
// the ordered suffix of the sequence from that step to Completed.
func (o *Orchestrator) Resume(ctx context.Context, fromStep schemas.StepID, payload schemas.ListingPayload) error {
	suffix := schemas.SuffixFrom(fromStep)
	if suffix == nil {
		return fmt.Errorf("cannot resume from %q: not a mid-flow step", fromStep)
	}
	if err := o.validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid listing payload: %w", err)
	}

	r, err := o.beginRun(payload, true)
	if err != nil {
		return err
	}
	defer o.endRun(r)

	o.log.Info("Resuming persisted run.",
		zap.String("run_id", r.id),
		zap.String("from_step", string(fromStep)),
		zap.Int("remaining_steps", len(suffix)))
	return o.execute(ctx, r, suffix)
}

// beginRun enforces the single-run guard. A duplicate start-fill gets
// ErrAlreadyAttempted whether the earlier run already finished or is still
// in flight, so the idempotent acknowledgement holds in both cases. Resume
// bypasses the attempted check (it exists precisely to pick up after the
// instance that set the guard was destroyed) but still refuses a
// concurrently active run.
func (o *Orchestrator) beginRun(payload schemas.ListingPayload, resume bool) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cur != nil {
		if !resume {
			return nil, ErrAlreadyAttempted
		}
		if o.cur.active {
			return nil, ErrRunActive
		}
	}
	r := &run{
		id:      uuid.NewString(),
		payload: payload,
		flags:   schemas.NewCompletionFlags(),
		step:    schemas.StepIdle,
		active:  true,
	}
	o.cur = r
	return r, nil
}

func (o *Orchestrator) endRun(r *run) {
	o.mu.Lock()
	r.active = false
	o.mu.Unlock()
}

func (o *Orchestrator) execute(ctx context.Context, r *run, sequence []schemas.StepID) error {
	rt := &steps.Runtime{
		Page:     o.env.Page,
		Loc:      o.env.Loc,
		Wait:     o.env.Wait,
		Typist:   o.env.Typist,
		Fetcher:  o.env.Fetcher,
		Log:      o.log.With(zap.String("run_id", r.id)),
		Platform: o.platform,
		Payload:  r.payload,
		Flags:    r.flags,
		Engine:   o.engine,
	}
	total := len(schemas.Sequence()) + 1

	for _, stepID := range sequence {
		def, ok := o.lib[stepID]
		if !ok {
			return fmt.Errorf("no step registered for %q", stepID)
		}
		if err := o.transition(ctx, r, stepID, nil); err != nil {
			return err
		}
		o.reporter.Progress(ctx, schemas.ProgressEvent{
			Progress: schemas.Progress{Current: schemas.Position(stepID), Total: total},
			Status:   def.Name,
		})

		op := func(ctx context.Context) error { return def.Run(ctx, rt) }
		switch def.Policy {
		case steps.PolicyHard:
			if _, err := o.retrier.Hard(ctx, def.Name, op, o.engine.HardMaxAttempts, o.engine.InitialRetryWait); err != nil {
				o.fail(ctx, r, stepID, err)
				return err
			}
		case steps.PolicySoft:
			outcome := o.retrier.Soft(ctx, def.Name, op, o.engine.SoftMaxAttempts, o.engine.InitialRetryWait)
			if outcome.Skipped {
				o.log.Info("Continuing past skipped step.",
					zap.String("step", string(stepID)),
					zap.String("run_id", r.id))
			}
		}
	}

	if err := o.transition(ctx, r, schemas.StepCompleted, nil); err != nil {
		return err
	}
	o.reporter.Progress(ctx, schemas.ProgressEvent{
		Progress: schemas.Progress{Current: total, Total: total},
		Status:   "completed",
	})
	o.reporter.Complete(ctx, schemas.CompleteEvent{
		Platform: o.platform.Name,
		Flags:    r.flags.Snapshot(),
	})
	o.log.Info("Posting run completed.", zap.String("run_id", r.id))
	return nil
}

// transition persists the new state, then reports it. Persistence strictly
// precedes emission so an observer never sees an event for a state that was
// not durably recorded.
func (o *Orchestrator) transition(ctx context.Context, r *run, stepID schemas.StepID, aux map[string]any) error {
	if err := o.persist(ctx, r, stepID, aux); err != nil {
		return err
	}
	o.reporter.StepChanged(ctx, schemas.StepChangedEvent{
		Step: stepID, Platform: o.platform.Name, Aux: aux,
	})
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, r *run, stepID schemas.StepID, aux map[string]any) error {
	r.step = stepID
	state := schemas.WorkflowState{Step: stepID, Timestamp: time.Now().UTC(), Aux: aux}
	if err := o.store.Save(ctx, o.pageKey, state); err != nil {
		return fmt.Errorf("persist %q: %w", stepID, err)
	}
	return nil
}

// fail records the terminal Error state with the triggering message, reports
// it, and leaves the user a visible notification. The caller re-raises.
func (o *Orchestrator) fail(ctx context.Context, r *run, stepID schemas.StepID, cause error) {
	aux := map[string]any{"error": cause.Error(), "failedStep": string(stepID)}
	if err := o.transition(ctx, r, schemas.StepError, aux); err != nil {
		o.log.Error("Could not persist error state.", zap.Error(err))
	}
	o.reporter.Error(ctx, schemas.ErrorEvent{
		Platform: o.platform.Name, Step: stepID, Error: cause.Error(),
	})
	o.notifier.Notify(ctx, "Posting workflow paused: please complete the listing manually.")
	o.log.Error("Posting run failed.",
		zap.String("run_id", r.id),
		zap.String("step", string(stepID)),
		zap.Error(cause))
}

// Step returns the current step: the in-flight run's step when one exists,
// otherwise the persisted state, otherwise Idle.
func (o *Orchestrator) Step(ctx context.Context) schemas.StepID {
	o.mu.Lock()
	cur := o.cur
	o.mu.Unlock()
	if cur != nil {
		return cur.step
	}
	if state, err := o.store.Load(ctx, o.pageKey); err == nil {
		return state.Step
	}
	return schemas.StepIdle
}

// Status returns the diagnostic snapshot served over the RPC surface.
func (o *Orchestrator) Status(ctx context.Context) schemas.StatusResponse {
	o.mu.Lock()
	cur := o.cur
	o.mu.Unlock()

	resp := schemas.StatusResponse{Step: o.Step(ctx)}
	if cur != nil {
		resp.FormFillAttempted = true
		resp.ImagesUploaded = cur.flags.Count(steps.FlagImagesAttached)
		resp.CompletionFlags = cur.flags.Snapshot()
	}
	return resp
}

// Ready reports the engine's readiness plus the current URL and step.
func (o *Orchestrator) Ready(ctx context.Context) (schemas.CheckReadyResponse, error) {
	url, err := o.env.Page.URL(ctx)
	if err != nil {
		return schemas.CheckReadyResponse{}, err
	}
	return schemas.CheckReadyResponse{Ready: true, URL: url, Step: o.Step(ctx)}, nil
}
