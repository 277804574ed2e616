// Package monitor wires one observation cycle end to end: fetch the page,
// extract or resolve the watched value, normalize it, advance the anti-flap
// state machine, persist the new state, and classify the change when one is
// confirmed. Scheduling stays outside; callers decide when a rule is due.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/antiflap"
	"github.com/fabianmarian8/pagewatch/internal/change"
	"github.com/fabianmarian8/pagewatch/internal/config"
	"github.com/fabianmarian8/pagewatch/internal/drift"
	"github.com/fabianmarian8/pagewatch/internal/extract"
	"github.com/fabianmarian8/pagewatch/internal/normalize"
	"github.com/fabianmarian8/pagewatch/internal/structured"
)

// Fetcher is the acquisition dependency. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts *schemas.FetchOptions) (*schemas.FetchResult, error)
}

// Observer runs observation cycles. Concurrent Observe calls for the same
// rule id serialize on a per-rule lock; everything else is safe to run in
// parallel.
type Observer struct {
	fetcher   Fetcher
	extractor *extract.Engine
	resolver  *structured.Resolver
	store     RuleStore
	logger    *zap.Logger

	defaultRequireConsecutive int
	locks                     *keyedLocks
}

// NewObserver validates dependencies and builds the orchestrator.
func NewObserver(fetcher Fetcher, store RuleStore, cfg config.MonitorConfig, logger *zap.Logger) (*Observer, error) {
	if fetcher == nil {
		return nil, errors.New("monitor: fetcher is required")
	}
	if store == nil {
		return nil, errors.New("monitor: rule store is required")
	}
	if logger == nil {
		return nil, errors.New("monitor: logger is required")
	}
	return &Observer{
		fetcher:                   fetcher,
		extractor:                 extract.NewEngine(logger),
		resolver:                  structured.NewResolver(logger),
		store:                     store,
		logger:                    logger.Named("monitor"),
		defaultRequireConsecutive: cfg.DefaultRequireConsecutive,
		locks:                     newKeyedLocks(),
	}, nil
}

// Observe executes one cycle for the rule and returns everything it
// produced. Failed acquisition, extraction, or normalization are not Go
// errors: the outcome records the typed failure and the anti-flap state is
// left exactly as it was. Errors are reserved for invalid rules and broken
// infrastructure (store failures, malformed URLs).
func (o *Observer) Observe(ctx context.Context, rule *schemas.Rule) (*schemas.ObservationOutcome, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule: %w", err)
	}

	lock := o.locks.get(rule.ID)
	lock.Lock()
	defer lock.Unlock()

	outcome := &schemas.ObservationOutcome{
		ID:         uuid.New().String(),
		RuleID:     rule.ID,
		ObservedAt: time.Now().UTC(),
	}
	log := o.logger.With(
		zap.String("rule_id", rule.ID),
		zap.String("observation_id", outcome.ID),
	)

	record, err := o.store.Load(ctx, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("loading state for rule %s: %w", rule.ID, err)
	}

	fetchResult, err := o.fetcher.Fetch(ctx, rule.URL, &rule.Fetch)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rule.URL, err)
	}
	outcome.Fetch = fetchResult
	if !fetchResult.Success {
		code := ""
		if fetchResult.Error != nil {
			code = string(fetchResult.Error.Code)
		}
		log.Warn("Acquisition failed; observation ends.", zap.String("error_code", code))
		return outcome, nil
	}

	var (
		prevState       *schemas.RuleState
		prevFingerprint *schemas.SchemaFingerprint
	)
	if record != nil {
		prevState = &record.State
		prevFingerprint = record.Fingerprint
	}

	raw, meta, ok := o.resolveRaw(outcome, rule, fetchResult.HTML)

	// Drift runs before the extraction outcome is consulted. A failed
	// resolution can still carry a fingerprint, and a page restructure is
	// exactly the kind of failure the drift report exists to explain.
	var currentFingerprint *schemas.SchemaFingerprint
	if meta != nil {
		currentFingerprint = meta.Fingerprint
	}
	if rule.Schema != nil {
		d := drift.Detect(prevFingerprint, currentFingerprint)
		outcome.Drift = &d
		if d.Drifted {
			log.Warn("Schema drift detected.", zap.String("reason", d.Reason))
		}
	}

	if !ok {
		log.Info("No value extracted; anti-flap state left untouched.")
		return outcome, nil
	}

	value, err := o.normalizeValue(rule, raw, meta)
	if err != nil {
		outcome.Error = fmt.Sprintf("normalization failed: %s", err)
		log.Warn("Normalization failed; observation ends.", zap.Error(err))
		return outcome, nil
	}
	outcome.Value = value

	flap, nextState := antiflap.Process(value, prevState, o.requireConsecutive(rule))
	nextState.RuleID = rule.ID
	outcome.State = &nextState
	outcome.CandidateCount = flap.CandidateCount
	outcome.ConfirmedChange = flap.ConfirmedChange

	if flap.ConfirmedChange {
		result := change.Detect(flap.PreviousStable, flap.NewStable, rule.Type)
		outcome.Change = &result
		log.Info("Change confirmed.",
			zap.String("kind", string(result.ChangeKind)),
			zap.String("summary", result.DiffSummary),
		)
	}

	nextRecord := &RuleRecord{State: nextState, Fingerprint: currentFingerprint}
	if nextRecord.Fingerprint == nil {
		// A cycle without structured data keeps the last known shape as
		// the drift baseline.
		nextRecord.Fingerprint = prevFingerprint
	}
	if err := o.store.Save(ctx, rule.ID, nextRecord); err != nil {
		return nil, fmt.Errorf("saving state for rule %s: %w", rule.ID, err)
	}

	return outcome, nil
}

// resolveRaw runs whichever extraction family the rule declares and records
// the typed result on the outcome. Schema metadata travels even when
// resolution fails, so the caller can still compare fingerprints.
func (o *Observer) resolveRaw(outcome *schemas.ObservationOutcome, rule *schemas.Rule, html string) (string, *schemas.SchemaMeta, bool) {
	if rule.Schema != nil {
		res := o.resolver.Resolve(html, rule.Schema)
		outcome.Schema = &res
		if !res.Success {
			return "", res.Meta, false
		}
		return res.RawValue, res.Meta, true
	}

	res := o.extractor.Extract(html, rule.Extraction)
	outcome.Extraction = &res
	if !res.Success {
		return "", nil, false
	}
	return res.Value, nil, true
}

// normalizeValue converts the raw extracted string into the typed value the
// state machine compares. Schema-resolved values carry their own metadata
// and skip the text-parsing heuristics.
func (o *Observer) normalizeValue(rule *schemas.Rule, raw string, meta *schemas.SchemaMeta) (*schemas.NormalizedValue, error) {
	switch rule.Type {
	case schemas.RuleTypePrice:
		if meta != nil {
			v, err := normalize.PriceFromSchema(raw, meta)
			if err != nil {
				return nil, err
			}
			return &v, nil
		}
		v, err := normalize.Price(raw)
		if err != nil {
			return nil, err
		}
		return &v, nil

	case schemas.RuleTypeAvailability:
		if meta != nil {
			return availabilityFromSchema(raw), nil
		}
		v := normalize.Availability(raw, rule.AvailabilityRules, rule.DefaultStatus)
		return &v, nil

	case schemas.RuleTypeText:
		v := normalize.Text(raw)
		return &v, nil

	case schemas.RuleTypeNumber:
		v, err := normalize.Number(raw)
		if err != nil {
			return nil, err
		}
		return &v, nil

	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// availabilityFromSchema trusts the resolver's already-mapped status token.
func availabilityFromSchema(raw string) *schemas.NormalizedValue {
	status := schemas.AvailabilityStatus(raw)
	if status == "" {
		status = schemas.AvailabilityUnknown
	}
	return &schemas.NormalizedValue{
		Kind:         schemas.ValueKindAvailability,
		Availability: &schemas.AvailabilityValue{Status: status},
	}
}

func (o *Observer) requireConsecutive(rule *schemas.Rule) int {
	if rule.RequireConsecutive > 0 {
		return rule.RequireConsecutive
	}
	return o.defaultRequireConsecutive
}
