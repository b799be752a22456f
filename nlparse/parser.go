package nlparse

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/nlflow/ai"
	"github.com/GoCodeAlone/nlflow/observability"
	"github.com/GoCodeAlone/nlflow/observability/tracing"
)

// Outcome tells which path produced a workflow.
type Outcome string

const (
	// OutcomePattern means pattern detection found at least one step.
	OutcomePattern Outcome = "pattern"
	// OutcomeModel means the language model supplied a valid workflow.
	OutcomeModel Outcome = "model"
	// OutcomeDegraded means the model path failed or was unavailable and the
	// (possibly empty) pattern result was returned instead.
	OutcomeDegraded Outcome = "degraded"
)

// Result is the tagged result of one parse.
type Result struct {
	Outcome  Outcome
	Workflow *ParsedWorkflow
	// FallbackErr is why the model path was abandoned. Set only for
	// OutcomeDegraded.
	FallbackErr error
}

// Fallback produces a workflow when pattern detection finds nothing.
// *ModelFallback is the production implementation.
type Fallback interface {
	Parse(ctx context.Context, instruction string, available []string) (*ParsedWorkflow, error)
}

// ParserConfig wires a Parser's collaborators. Only Detector has a default;
// a nil Fallback means every unmatched instruction degrades.
type ParserConfig struct {
	Detector *Detector
	Fallback Fallback
	Logger   *slog.Logger
	Tracer   *tracing.ParseTracer
	Metrics  *observability.Metrics
}

// Parser runs pattern detection and, when nothing matches, the model
// fallback. Its fields are set once by NewParser and a Parser is safe for
// concurrent use.
type Parser struct {
	detector *Detector
	fallback Fallback
	logger   *slog.Logger
	tracer   *tracing.ParseTracer
	metrics  *observability.Metrics
}

// NewParser creates a Parser.
func NewParser(cfg ParserConfig) *Parser {
	p := &Parser{
		detector: cfg.Detector,
		fallback: cfg.Fallback,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		metrics:  cfg.Metrics,
	}
	if p.detector == nil {
		p.detector = NewDetector(DetectorOptions{})
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = tracing.NewParseTracer(nil)
	}
	return p
}

// Parse returns the workflow for instruction. Model failures never surface
// here; the only errors are ErrEmptyInstruction and an *InvariantError from
// the pattern path.
func (p *Parser) Parse(ctx context.Context, instruction string, available []string) (*ParsedWorkflow, error) {
	res, err := p.ParseWithOutcome(ctx, instruction, available)
	if err != nil {
		return nil, err
	}
	return res.Workflow, nil
}

// ParseWithOutcome is Parse with the path that produced the workflow.
func (p *Parser) ParseWithOutcome(ctx context.Context, instruction string, available []string) (Result, error) {
	if instruction == "" {
		return Result{}, ErrEmptyInstruction
	}

	start := time.Now()
	ctx, span := p.tracer.StartParse(ctx, len(instruction), len(available))
	defer span.End()

	res, err := p.parse(ctx, instruction, available)
	if err != nil {
		p.tracer.RecordError(span, err)
		return Result{}, err
	}

	p.tracer.SetOutcome(span, string(res.Outcome), len(res.Workflow.Steps))
	if res.FallbackErr != nil {
		p.tracer.RecordError(span, res.FallbackErr)
	} else {
		p.tracer.SetSuccess(span)
	}
	p.metrics.RecordParse(string(res.Outcome), len(res.Workflow.Steps), time.Since(start))
	return res, nil
}

func (p *Parser) parse(ctx context.Context, instruction string, available []string) (Result, error) {
	detection := p.detector.Detect(instruction)
	if len(detection.Steps) > 0 {
		wf, err := Assemble(instruction, detection)
		if err != nil {
			p.logger.Error("Pattern detection produced an invalid workflow", "error", err)
			return Result{}, err
		}
		p.logger.Debug("Parsed instruction by pattern", "steps", len(wf.Steps), "apps", wf.RequiredApps)
		return Result{Outcome: OutcomePattern, Workflow: wf}, nil
	}

	fallbackErr := ai.ErrNoGenerator
	if p.fallback != nil {
		wf, err := p.fallback.Parse(ctx, instruction, available)
		if err == nil && wf != nil {
			p.logger.Debug("Parsed instruction by model", "steps", len(wf.Steps))
			return Result{Outcome: OutcomeModel, Workflow: wf}, nil
		}
		fallbackErr = err
		if fallbackErr == nil {
			fallbackErr = errors.New("fallback returned no workflow")
		}
	}

	wf, err := Assemble(instruction, detection)
	if err != nil {
		return Result{}, err
	}
	p.logger.Warn("Model fallback unavailable, returning pattern result", "error", fallbackErr)
	return Result{Outcome: OutcomeDegraded, Workflow: wf, FallbackErr: fallbackErr}, nil
}
