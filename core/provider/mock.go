package provider

import (
	"context"
	"sync"

	"pcb-cost/core/types"
)

// Mock is a configurable Adapter for tests and dry runs.
// Set the function fields to control behavior; nil fields return canned
// answers that never change an estimate's numbers.
type Mock struct {
	ClassifyFunc          func(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error)
	CheckPriceFunc        func(ctx context.Context, q PriceQuery) (types.PriceReasonablenessResult, types.Usage, error)
	CheckObsolescenceFunc func(ctx context.Context, item types.LineItem) (types.ObsolescenceResult, types.Usage, error)

	mu                     sync.Mutex
	classifyCalls          int
	checkPriceCalls        int
	checkObsolescenceCalls int
}

// NewMock creates a mock with canned answers
func NewMock() *Mock {
	return &Mock{}
}

// Name returns mock
func (m *Mock) Name() string { return "mock" }

// Classify implements Adapter
func (m *Mock) Classify(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
	m.mu.Lock()
	m.classifyCalls++
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, item)
	}
	return types.ClassificationResult{
		Category:   types.CategoryOther,
		Confidence: 0,
		Source:     types.SourceAI,
		Rule:       types.RuleAI,
		Reasoning:  "mock provider",
	}, types.Usage{}, nil
}

// CheckPrice implements Adapter
func (m *Mock) CheckPrice(ctx context.Context, q PriceQuery) (types.PriceReasonablenessResult, types.Usage, error) {
	m.mu.Lock()
	m.checkPriceCalls++
	m.mu.Unlock()

	if m.CheckPriceFunc != nil {
		return m.CheckPriceFunc(ctx, q)
	}
	return types.PriceReasonablenessResult{
		ExpectedLow:     q.Band.Low,
		ExpectedHigh:    q.Band.High,
		VariancePercent: VariancePercent(q.Band.Typical, q.Band.Low, q.Band.High),
		IsReasonable:    true,
		Confidence:      0,
	}, types.Usage{}, nil
}

// CheckObsolescence implements Adapter
func (m *Mock) CheckObsolescence(ctx context.Context, item types.LineItem) (types.ObsolescenceResult, types.Usage, error) {
	m.mu.Lock()
	m.checkObsolescenceCalls++
	m.mu.Unlock()

	if m.CheckObsolescenceFunc != nil {
		return m.CheckObsolescenceFunc(ctx, item)
	}
	return types.ObsolescenceResult{
		MPN:        item.NormalizedMPN(),
		Risk:       types.RiskNone,
		Lifecycle:  types.LifecycleUnknown,
		Confidence: 0,
	}, types.Usage{}, nil
}

// ClassifyCalls returns the number of Classify calls
func (m *Mock) ClassifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifyCalls
}

// CheckPriceCalls returns the number of CheckPrice calls
func (m *Mock) CheckPriceCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkPriceCalls
}

// CheckObsolescenceCalls returns the number of CheckObsolescence calls
func (m *Mock) CheckObsolescenceCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkObsolescenceCalls
}

// ScriptedCompleter replays queued replies in order, repeating the last
// one when the script runs out.
type ScriptedCompleter struct {
	mu       sync.Mutex
	replies  []ScriptedReply
	requests []Request
}

// ScriptedReply is one canned completion
type ScriptedReply struct {
	Text  string
	Usage types.Usage
	Err   error
}

// NewScriptedCompleter creates a completer that plays replies
func NewScriptedCompleter(replies ...ScriptedReply) *ScriptedCompleter {
	return &ScriptedCompleter{replies: replies}
}

// Name returns scripted
func (s *ScriptedCompleter) Name() string { return "scripted" }

// Model returns scripted-model
func (s *ScriptedCompleter) Model() string { return "scripted-model" }

// Complete returns the next scripted reply
func (s *ScriptedCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(s.replies) == 0 {
		return Response{Text: "{}"}, nil
	}

	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if r.Err != nil {
		return Response{}, r.Err
	}
	return Response{Text: r.Text, Usage: r.Usage}, nil
}

// Requests returns every request received
func (s *ScriptedCompleter) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
