package lifecycle

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Evaluation is the outcome of evaluating one file against a policy.
// Blocked outcomes carry Action keep: the file stays, with the reason
// recorded, regardless of what the matching rule declared.
type Evaluation struct {
	File             *FileMetadata
	MatchedRule      *Rule
	Action           Action
	ActionParams     map[string]string
	SafeguardBlocked bool
	SafeguardReason  string
	EvaluatedAt      time.Time
}

type compiledRule struct {
	rule      *Rule
	predicate Predicate
	override  Predicate
}

// Evaluator applies a validated policy to files. Construction validates
// the policy and resolves named predicates once; evaluation itself is
// pure, side-effect-free and safe for concurrent use.
type Evaluator struct {
	policy         *Policy
	rules          []compiledRule
	globalOverride Predicate
}

// NewEvaluator validates p against reg and compiles its enabled rules in
// ascending priority order.
func NewEvaluator(p *Policy, reg *PredicateRegistry) (*Evaluator, error) {
	p.ApplyDefaults()
	if err := p.Validate(reg); err != nil {
		return nil, fmt.Errorf("lifecycle: invalid policy: %w", err)
	}

	e := &Evaluator{policy: p}
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.IsEnabled() {
			continue
		}
		cr := compiledRule{rule: r}
		if name := r.Conditions.Predicate; name != "" {
			cr.predicate, _ = reg.Get(name)
		}
		if name := r.Safeguards.Override; name != "" {
			cr.override, _ = reg.Get(name)
		}
		e.rules = append(e.rules, cr)
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].rule.Priority < e.rules[j].rule.Priority
	})

	if name := p.GlobalSafeguards.Override; name != "" {
		e.globalOverride, _ = reg.Get(name)
	}
	return e, nil
}

// Policy returns the compiled policy.
func (e *Evaluator) Policy() *Policy { return e.policy }

// Evaluate applies the policy to f as of the current time.
func (e *Evaluator) Evaluate(f *FileMetadata) *Evaluation {
	return e.EvaluateAt(f, time.Now().UTC())
}

// EvaluateAt applies the policy to f, stamping the outcome with at.
// Identical inputs yield identical outcomes.
func (e *Evaluator) EvaluateAt(f *FileMetadata, at time.Time) *Evaluation {
	// Global safeguards are checked against a hypothetical delete before
	// any rule runs, so protected files are kept no matter what the
	// rules would decide.
	if reason, blocked := blockedBy(&e.policy.GlobalSafeguards, e.globalOverride, f, ActionDelete); blocked {
		return &Evaluation{
			File:             f,
			Action:           ActionKeep,
			SafeguardBlocked: true,
			SafeguardReason:  reason,
			EvaluatedAt:      at,
		}
	}

	for i := range e.rules {
		cr := &e.rules[i]
		if !conditionsMatch(&cr.rule.Conditions, cr.predicate, f) {
			continue
		}
		// First match wins; later rules are never examined.
		if reason, blocked := blockedBy(&cr.rule.Safeguards, cr.override, f, cr.rule.Action); blocked {
			return &Evaluation{
				File:             f,
				MatchedRule:      cr.rule,
				Action:           ActionKeep,
				SafeguardBlocked: true,
				SafeguardReason:  reason,
				EvaluatedAt:      at,
			}
		}
		return &Evaluation{
			File:         f,
			MatchedRule:  cr.rule,
			Action:       cr.rule.Action,
			ActionParams: cr.rule.ActionParams,
			EvaluatedAt:  at,
		}
	}

	return &Evaluation{File: f, Action: ActionNone, EvaluatedAt: at}
}

// conditionsMatch reports whether every present condition holds. A
// condition that needs a field the file does not carry fails.
func conditionsMatch(c *RuleConditions, pred Predicate, f *FileMetadata) bool {
	if c.MinAgeDays != nil && f.AgeDays < *c.MinAgeDays {
		return false
	}
	if c.MaxAgeDays != nil && f.AgeDays > *c.MaxAgeDays {
		return false
	}
	if c.MinAgeSinceAccessDays != nil {
		if f.AgeSinceAccessDays == nil || *f.AgeSinceAccessDays < *c.MinAgeSinceAccessDays {
			return false
		}
	}
	if c.MinSizeBytes != nil && f.Size < *c.MinSizeBytes {
		return false
	}
	if c.MaxSizeBytes != nil && f.Size > *c.MaxSizeBytes {
		return false
	}
	if len(c.FileKinds) > 0 {
		if f.Path == nil || !slices.Contains(c.FileKinds, f.Path.Kind) {
			return false
		}
	}
	if len(c.ContentTypes) > 0 && !slices.Contains(c.ContentTypes, f.ContentType) {
		return false
	}
	if len(c.PathPrefixes) > 0 && !hasAnyPrefix(f.Key, c.PathPrefixes) {
		return false
	}
	for _, p := range c.ExcludePrefixes {
		if strings.HasPrefix(f.Key, p) {
			return false
		}
	}
	for _, k := range c.RequiredMetadata {
		if _, ok := f.Custom[k]; !ok {
			return false
		}
	}
	for _, k := range c.ForbiddenMetadata {
		if _, ok := f.Custom[k]; ok {
			return false
		}
	}
	for k, v := range c.MetadataEquals {
		if f.Custom[k] != v {
			return false
		}
	}
	if c.Predicate != "" {
		if pred == nil || !pred.Matches(f) {
			return false
		}
	}
	return true
}

// blockedBy checks one safeguard group against a prospective action.
// Prefixes match the raw key exactly, with no normalization or case
// folding. The override predicate lifts the whole group when it matches.
func blockedBy(s *Safeguards, override Predicate, f *FileMetadata, action Action) (string, bool) {
	if !action.IsDestructive() {
		return "", false
	}
	if override != nil && override.Matches(f) {
		return "", false
	}
	for _, p := range s.ProtectedPrefixes {
		if strings.HasPrefix(f.Key, p) {
			return fmt.Sprintf("protected prefix %q", p), true
		}
	}
	for k, v := range s.ProtectedMetadata {
		got, ok := f.Custom[k]
		if !ok {
			continue
		}
		if v == "" || got == v {
			return fmt.Sprintf("protected metadata %q", k), true
		}
	}
	return "", false
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
