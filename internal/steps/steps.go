package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/config"
	"github.com/crosslister/postflow/internal/dom"
	"github.com/crosslister/postflow/internal/humanoid"
)

// Completion flag keys recorded by the step library.
const (
	FlagTitleFilled         = "titleFilled"
	FlagPriceFilled         = "priceFilled"
	FlagDescriptionFilled   = "descriptionFilled"
	FlagCategorySelected    = "categorySelected"
	FlagConditionSelected   = "conditionSelected"
	FlagImagesUploaded      = "imagesUploaded"
	FlagImagesAttached      = "imagesAttached"
	FlagNext1Clicked        = "nextButton1Clicked"
	FlagNext2Clicked        = "nextButton2Clicked"
	FlagLocationFilled      = "locationFilled"
	FlagDeliverySelected    = "deliverySelected"
	FlagGroupsSelected      = "groupsSelected"
	FlagPublishClicked      = "publishClicked"
	FlagPublishConfirmed    = "publishConfirmed"
	FlagPublishUnconfirmed  = "publishUnconfirmed"
	FlagNavigationConfirmed = "navigationConfirmed"
)

// Policy designates which retry wrapper governs a step.
type Policy int

const (
	// PolicyHard halts the workflow on exhaustion.
	PolicyHard Policy = iota
	// PolicySoft degrades to a warning and continues.
	PolicySoft
)

// Runtime is the shared scratch state threaded through a run's steps. It is
// constructed per run and owned by the orchestrator; steps read the payload
// and append to the completion flags.
type Runtime struct {
	Page     dom.Page
	Loc      *dom.Locator
	Wait     *dom.Waiter
	Typist   *humanoid.Typist
	Fetcher  *Fetcher
	Log      *zap.Logger
	Platform *Platform
	Payload  schemas.ListingPayload
	Flags    *schemas.CompletionFlags
	Engine   config.EngineConfig

	// Sleep is swappable in tests; nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (rt *Runtime) sleep(ctx context.Context, d time.Duration) error {
	if rt.Sleep != nil {
		return rt.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rt *Runtime) target(name string) (dom.Target, error) {
	t, ok := rt.Platform.Target(name)
	if !ok {
		return dom.Target{}, fmt.Errorf("platform %q has no target %q", rt.Platform.Name, name)
	}
	return t, nil
}

// Definition is one named, independently retryable step.
type Definition struct {
	ID     schemas.StepID
	Name   string
	Policy Policy
	Run    func(ctx context.Context, rt *Runtime) error
}

// Library returns the step table for a platform, keyed by step ID. The
// orchestrator walks schemas.Sequence() and looks each step up here.
func Library() map[schemas.StepID]Definition {
	return map[schemas.StepID]Definition{
		schemas.StepUploadingImages: {
			ID: schemas.StepUploadingImages, Name: "upload images",
			Policy: PolicySoft, Run: uploadImages,
		},
		schemas.StepFormFill: {
			ID: schemas.StepFormFill, Name: "fill basic fields",
			Policy: PolicyHard, Run: fillBasics,
		},
		schemas.StepSelectingCategory: {
			ID: schemas.StepSelectingCategory, Name: "select category",
			Policy: PolicySoft, Run: selectCategory,
		},
		schemas.StepSelectingCondition: {
			ID: schemas.StepSelectingCondition, Name: "select condition",
			Policy: PolicySoft, Run: selectCondition,
		},
		schemas.StepClickingNext1: {
			ID: schemas.StepClickingNext1, Name: "advance to details screen",
			Policy: PolicyHard, Run: makeClickNext(FlagNext1Clicked, TargetLocation),
		},
		schemas.StepLocationDelivery: {
			ID: schemas.StepLocationDelivery, Name: "set location and delivery",
			Policy: PolicySoft, Run: locationDelivery,
		},
		schemas.StepClickingNext2: {
			ID: schemas.StepClickingNext2, Name: "advance to visibility screen",
			Policy: PolicyHard, Run: makeClickNext(FlagNext2Clicked, TargetGroupOption),
		},
		schemas.StepVisibilityOptions: {
			ID: schemas.StepVisibilityOptions, Name: "set visibility options",
			Policy: PolicySoft, Run: visibilityOptions,
		},
		schemas.StepPublishing: {
			ID: schemas.StepPublishing, Name: "publish listing",
			Policy: PolicyHard, Run: publish,
		},
	}
}

// DetectLogin reports whether the current page is an authentication page,
// in which case automation must not start.
func DetectLogin(ctx context.Context, page dom.Page, p *Platform) (string, bool, error) {
	url, err := page.URL(ctx)
	if err != nil {
		return "", false, err
	}
	if p.LoginPathPattern != nil && p.LoginPathPattern.MatchString(url) {
		return url, true, nil
	}
	return url, false, nil
}

// -- step implementations --

func fillBasics(ctx context.Context, rt *Runtime) error {
	fields := []struct {
		target   string
		value    string
		flag     string
		required bool
	}{
		{TargetTitle, rt.Payload.Title, FlagTitleFilled, true},
		{TargetPrice, rt.Payload.Price, FlagPriceFilled, true},
		{TargetDescription, rt.Payload.Description, FlagDescriptionFilled, false},
	}
	for _, f := range fields {
		if f.value == "" && !f.required {
			continue
		}
		target, err := rt.target(f.target)
		if err != nil {
			return err
		}
		el, err := rt.Wait.Wait(ctx, rt.Page, target, rt.Engine.WaitTimeout, rt.Engine.WaitAttempts)
		if err != nil {
			if !f.required {
				rt.Log.Warn("Optional field not found; leaving it blank.",
					zap.String("target", target.Name), zap.Error(err))
				continue
			}
			return err
		}
		matched, err := rt.Typist.Type(ctx, rt.Page, el, f.value)
		if err != nil {
			return fmt.Errorf("typing into %s: %w", target.Name, err)
		}
		// A mismatch usually means the form reformatted the value (currency
		// masking on price); record it but do not fail.
		rt.Flags.Set(f.flag, true)
		if !matched {
			rt.Log.Debug("Field value was reformatted after typing.",
				zap.String("target", target.Name))
		}
	}
	return nil
}

func selectCategory(ctx context.Context, rt *Runtime) error {
	opener, err := rt.target(TargetCategoryOpener)
	if err != nil {
		return err
	}
	el, err := rt.Wait.Wait(ctx, rt.Page, opener, rt.Engine.WaitTimeout, rt.Engine.WaitAttempts)
	if err != nil {
		return err
	}
	if err := rt.Page.Click(ctx, el.XPath); err != nil {
		return err
	}

	options, texts, err := rt.waitOptions(ctx, TargetCategoryOption)
	if err != nil {
		return err
	}

	want := rt.Payload.Category
	if want == "" {
		want = rt.Platform.InferCategory(rt.Payload.Title, rt.Payload.Description)
		rt.Log.Info("Inferred category from listing text.", zap.String("category", want))
	}
	chosen := MatchOption(want, texts)
	if chosen == "" {
		chosen = MatchOption(rt.Platform.ResolveAlias(want), texts)
	}
	if chosen == "" {
		chosen = MatchOption(rt.Platform.DefaultCategory, texts)
	}
	if chosen == "" {
		return fmt.Errorf("no category option matches %q: %w", want, dom.ErrElementNotFound)
	}
	if err := rt.clickOption(ctx, options, texts, chosen); err != nil {
		return err
	}
	rt.Flags.Set(FlagCategorySelected, true)
	return nil
}

func selectCondition(ctx context.Context, rt *Runtime) error {
	if rt.Payload.Condition == "" {
		rt.Flags.Set(FlagConditionSelected, false)
		return nil
	}
	opener, err := rt.target(TargetConditionOpener)
	if err != nil {
		return err
	}
	el, err := rt.Wait.Wait(ctx, rt.Page, opener, rt.Engine.WaitTimeout, rt.Engine.WaitAttempts)
	if err != nil {
		return err
	}
	if err := rt.Page.Click(ctx, el.XPath); err != nil {
		return err
	}

	options, texts, err := rt.waitOptions(ctx, TargetConditionOption)
	if err != nil {
		return err
	}
	chosen := MatchOption(rt.Payload.Condition, texts)
	if chosen == "" {
		return fmt.Errorf("no condition option matches %q: %w", rt.Payload.Condition, dom.ErrElementNotFound)
	}
	if err := rt.clickOption(ctx, options, texts, chosen); err != nil {
		return err
	}
	rt.Flags.Set(FlagConditionSelected, true)
	return nil
}

func uploadImages(ctx context.Context, rt *Runtime) error {
	if len(rt.Payload.ImageURLs) == 0 {
		rt.Flags.Set(FlagImagesUploaded, false)
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, rt.Engine.ImageTimeout)
	defer cancel()
	files, err := rt.Fetcher.Fetch(fetchCtx, rt.Payload.ImageURLs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no image could be retrieved", ErrImageFetch)
	}

	// File inputs are routinely styled out of layout behind an upload
	// button, so presence, not visibility, is the predicate here.
	target, err := rt.target(TargetFileInput)
	if err != nil {
		return err
	}
	doc, err := rt.Page.Snapshot(ctx)
	if err != nil {
		return err
	}
	el, err := rt.Loc.Resolve(doc, target, dom.Present)
	if err != nil {
		return err
	}
	if err := rt.Page.SetFiles(ctx, el.XPath, files); err != nil {
		return err
	}
	if err := rt.Page.DispatchChange(ctx, el.XPath); err != nil {
		return err
	}
	if err := rt.Page.DispatchInput(ctx, el.XPath); err != nil {
		return err
	}
	rt.Flags.Set(FlagImagesUploaded, true)
	rt.Flags.SetCount(FlagImagesAttached, len(files))
	return nil
}

func makeClickNext(flag string, anchors ...string) func(ctx context.Context, rt *Runtime) error {
	return func(ctx context.Context, rt *Runtime) error {
		doc, err := rt.Page.Snapshot(ctx)
		if err != nil {
			return err
		}
		button, ok := FindButton(rt.Loc, doc, rt.Platform.NextLabels)
		if !ok {
			return fmt.Errorf("next button: %w", dom.ErrElementNotFound)
		}
		if IsDisabled(button, rt.Platform.DisabledClasses) {
			return &DisabledError{
				Control: rt.Platform.NextLabels[0],
				Invalid: InvalidSections(doc),
			}
		}
		before, err := rt.Page.NodeCount(ctx)
		if err != nil {
			return err
		}
		if err := rt.Page.Click(ctx, button.XPath); err != nil {
			return err
		}
		rt.Flags.Set(flag, true)
		rt.confirmNavigation(ctx, before)
		rt.awaitScreen(ctx, anchors)
		return nil
	}
}

func locationDelivery(ctx context.Context, rt *Runtime) error {
	if rt.Payload.Location != "" {
		target, err := rt.target(TargetLocation)
		if err != nil {
			return err
		}
		el, err := rt.Wait.Wait(ctx, rt.Page, target, rt.Engine.WaitTimeout, rt.Engine.WaitAttempts)
		if err != nil {
			return err
		}
		if _, err := rt.Typist.Type(ctx, rt.Page, el, rt.Payload.Location); err != nil {
			return err
		}
		rt.Flags.Set(FlagLocationFilled, true)
	}
	if rt.Payload.DeliveryMethod != "" {
		doc, err := rt.Page.Snapshot(ctx)
		if err != nil {
			return err
		}
		target := dom.NewTarget("delivery option "+rt.Payload.DeliveryMethod,
			dom.ByText(rt.Payload.DeliveryMethod),
			dom.ByLabel(rt.Payload.DeliveryMethod),
		)
		el, err := rt.Loc.Resolve(doc, target, nil)
		if err != nil {
			return err
		}
		if err := rt.Page.Click(ctx, el.XPath); err != nil {
			return err
		}
		rt.Flags.Set(FlagDeliverySelected, true)
	}
	return nil
}

func visibilityOptions(ctx context.Context, rt *Runtime) error {
	if rt.Payload.SkipGroups {
		rt.Flags.SetCount(FlagGroupsSelected, 0)
		return nil
	}
	target, err := rt.target(TargetGroupOption)
	if err != nil {
		return err
	}
	doc, err := rt.Page.Snapshot(ctx)
	if err != nil {
		return err
	}
	options := rt.Loc.ResolveAll(doc, target, nil)
	limit := rt.Payload.MaxGroups
	if limit <= 0 || limit > len(options) {
		limit = len(options)
	}
	selected := 0
	for _, opt := range options[:limit] {
		if err := rt.Page.Click(ctx, opt.XPath); err != nil {
			rt.Log.Warn("Could not toggle group option.",
				zap.String("xpath", opt.XPath), zap.Error(err))
			continue
		}
		selected++
	}
	rt.Flags.SetCount(FlagGroupsSelected, selected)
	return nil
}

func publish(ctx context.Context, rt *Runtime) error {
	doc, err := rt.Page.Snapshot(ctx)
	if err != nil {
		return err
	}
	button, ok := FindButton(rt.Loc, doc, rt.Platform.PublishLabels)
	if !ok {
		return fmt.Errorf("publish button: %w", dom.ErrElementNotFound)
	}
	if IsDisabled(button, rt.Platform.DisabledClasses) {
		return &DisabledError{
			Control: rt.Platform.PublishLabels[0],
			Invalid: InvalidSections(doc),
		}
	}
	if err := rt.Page.Click(ctx, button.XPath); err != nil {
		return err
	}
	rt.Flags.Set(FlagPublishClicked, true)

	if err := rt.sleep(ctx, rt.Engine.SettleTime); err != nil {
		return err
	}
	confirmed, err := rt.publishConfirmed(ctx)
	if err != nil {
		return err
	}
	rt.Flags.Set(FlagPublishConfirmed, confirmed)
	if !confirmed {
		// The client cannot distinguish "not yet settled" from "actually
		// failed" without polling further; record and move on.
		rt.Flags.Set(FlagPublishUnconfirmed, true)
		rt.Log.Warn("No publish confirmation signal observed.",
			zap.Error(ErrPublishUnconfirmed))
	}
	return nil
}

// publishConfirmed checks the two advisory success signals: a known success
// phrase in the page text, or the URL matching the post-publish pattern.
func (rt *Runtime) publishConfirmed(ctx context.Context) (bool, error) {
	body, err := rt.Page.BodyText(ctx)
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(body)
	for _, phrase := range rt.Platform.SuccessPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true, nil
		}
	}
	url, err := rt.Page.URL(ctx)
	if err != nil {
		return false, err
	}
	if rt.Platform.PostPublishPattern != nil && rt.Platform.PostPublishPattern.MatchString(url) {
		return true, nil
	}
	return false, nil
}

// awaitScreen polls for any of the named anchor targets of the destination
// screen, a stronger transition signal than the node-count delta. The first
// anchor to render confirms the navigation; absence is logged only.
func (rt *Runtime) awaitScreen(ctx context.Context, anchors []string) {
	targets := make([]dom.Target, 0, len(anchors))
	for _, name := range anchors {
		if t, ok := rt.Platform.Target(name); ok {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return
	}
	idx, _, err := rt.Wait.WaitForAny(ctx, rt.Page, targets, rt.Engine.GraceTime)
	if err != nil {
		rt.Log.Warn("No anchor of the destination screen rendered.", zap.Error(err))
		return
	}
	rt.Flags.Set(FlagNavigationConfirmed, true)
	rt.Log.Debug("Destination screen anchor rendered.", zap.String("anchor", targets[idx].Name))
}

// confirmNavigation compares pre/post node counts after a settle period as a
// weak signal that the screen actually transitioned, waiting one extra grace
// period when nothing changed. Advisory only.
func (rt *Runtime) confirmNavigation(ctx context.Context, before int) {
	if err := rt.sleep(ctx, rt.Engine.SettleTime); err != nil {
		return
	}
	after, err := rt.Page.NodeCount(ctx)
	if err == nil && after != before {
		rt.Flags.Set(FlagNavigationConfirmed, true)
		return
	}
	if err := rt.sleep(ctx, rt.Engine.GraceTime); err != nil {
		return
	}
	after, err = rt.Page.NodeCount(ctx)
	if err == nil && after != before {
		rt.Flags.Set(FlagNavigationConfirmed, true)
		return
	}
	rt.Flags.Set(FlagNavigationConfirmed, false)
	rt.Log.Warn("Screen did not visibly change after click; proceeding anyway.",
		zap.Int("node_count", before), zap.Error(ErrNavigationTimeout))
}

// waitOptions waits for an option list to render, then returns the resolved
// elements alongside their trimmed texts.
func (rt *Runtime) waitOptions(ctx context.Context, targetName string) ([]*dom.Element, []string, error) {
	target, err := rt.target(targetName)
	if err != nil {
		return nil, nil, err
	}
	if _, err := rt.Wait.Wait(ctx, rt.Page, target, rt.Engine.WaitTimeout, rt.Engine.WaitAttempts); err != nil {
		return nil, nil, err
	}
	doc, err := rt.Page.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	options := rt.Loc.ResolveAll(doc, target, nil)
	texts := make([]string, len(options))
	for i, opt := range options {
		texts[i] = opt.Text()
	}
	return options, texts, nil
}

func (rt *Runtime) clickOption(ctx context.Context, options []*dom.Element, texts []string, chosen string) error {
	for i, text := range texts {
		if text == chosen {
			return rt.Page.Click(ctx, options[i].XPath)
		}
	}
	return fmt.Errorf("option %q disappeared before click: %w", chosen, dom.ErrElementNotFound)
}
