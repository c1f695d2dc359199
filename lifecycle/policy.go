// Package lifecycle evaluates retention policies over stored photo files
// and executes the resulting actions. A policy is a prioritized list of
// rules, each a conjunction of conditions with a declared action, wrapped
// in safeguards that can suppress destructive outcomes. Evaluation is
// pure; the scanner pages through a provider, evaluates every object and
// optionally dispatches actions under a per-run deletion cap.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/sean-she/photoflow-storage/validation"
)

// Action is the outcome a rule prescribes for a matching file.
type Action string

const (
	ActionNone    Action = "none"
	ActionKeep    Action = "keep"
	ActionArchive Action = "archive"
	ActionDelete  Action = "delete"
)

// IsDestructive reports whether dispatching the action mutates storage.
// Safeguards apply only to destructive actions.
func (a Action) IsDestructive() bool {
	return a == ActionArchive || a == ActionDelete
}

// DefaultArchivePrefix prefixes archived keys when the policy sets none.
const DefaultArchivePrefix = "archive/"

// ArchivePrefixParam is the rule action parameter overriding the policy's
// archive prefix.
const ArchivePrefixParam = "archive_prefix"

// RuleConditions is a conjunction of optional predicates: every present
// condition must hold for the rule to match. A condition that needs a
// field the file does not carry fails closed.
type RuleConditions struct {
	// MinAgeDays and MaxAgeDays bound the age since last modification.
	MinAgeDays *int `mapstructure:"min_age_days" json:"min_age_days,omitempty" validate:"omitempty,min=0"`
	MaxAgeDays *int `mapstructure:"max_age_days" json:"max_age_days,omitempty" validate:"omitempty,min=0"`

	// MinAgeSinceAccessDays requires a recorded last access at least this
	// many days ago. Files without one never match.
	MinAgeSinceAccessDays *int `mapstructure:"min_age_since_access_days" json:"min_age_since_access_days,omitempty" validate:"omitempty,min=0"`

	// MinSizeBytes and MaxSizeBytes bound the object size.
	MinSizeBytes *int64 `mapstructure:"min_size_bytes" json:"min_size_bytes,omitempty" validate:"omitempty,min=0"`
	MaxSizeBytes *int64 `mapstructure:"max_size_bytes" json:"max_size_bytes,omitempty" validate:"omitempty,min=0"`

	// FileKinds is an allow-list of parsed path kinds. Keys outside the
	// photo layout never match it.
	FileKinds []FileKind `mapstructure:"file_kinds" json:"file_kinds,omitempty"`

	// ContentTypes is an allow-list of exact MIME types.
	ContentTypes []string `mapstructure:"content_types" json:"content_types,omitempty"`

	// PathPrefixes requires the key to start with one of these;
	// ExcludePrefixes rejects keys starting with any of these.
	PathPrefixes    []string `mapstructure:"path_prefixes" json:"path_prefixes,omitempty"`
	ExcludePrefixes []string `mapstructure:"exclude_prefixes" json:"exclude_prefixes,omitempty"`

	// RequiredMetadata and ForbiddenMetadata check key presence;
	// MetadataEquals checks exact values.
	RequiredMetadata  []string          `mapstructure:"required_metadata" json:"required_metadata,omitempty"`
	ForbiddenMetadata []string          `mapstructure:"forbidden_metadata" json:"forbidden_metadata,omitempty"`
	MetadataEquals    map[string]string `mapstructure:"metadata_equals" json:"metadata_equals,omitempty"`

	// Predicate names a registered custom predicate that must match.
	Predicate string `mapstructure:"predicate" json:"predicate,omitempty"`
}

// needsObjectMetadata reports whether matching these conditions requires
// fields a plain listing does not carry.
func (c *RuleConditions) needsObjectMetadata() bool {
	return c.MinAgeSinceAccessDays != nil ||
		len(c.ContentTypes) > 0 ||
		len(c.RequiredMetadata) > 0 ||
		len(c.ForbiddenMetadata) > 0 ||
		len(c.MetadataEquals) > 0 ||
		c.Predicate != ""
}

// Safeguards suppress destructive actions. They never block keep or none.
type Safeguards struct {
	// ProtectedPrefixes block by exact raw-key prefix match, with no
	// normalization or case folding.
	ProtectedPrefixes []string `mapstructure:"protected_prefixes" json:"protected_prefixes,omitempty"`

	// ProtectedMetadata blocks when the key is present; a non-empty value
	// additionally requires an exact value match.
	ProtectedMetadata map[string]string `mapstructure:"protected_metadata" json:"protected_metadata,omitempty"`

	// MaxDeletionsPerRun caps dispatched deletions per scan run. Only
	// meaningful on global safeguards.
	MaxDeletionsPerRun *int `mapstructure:"max_deletions_per_run" json:"max_deletions_per_run,omitempty" validate:"omitempty,min=0"`

	// Override names a predicate that lifts this group's blocks when it
	// matches the file.
	Override string `mapstructure:"override" json:"override,omitempty"`
}

func (s *Safeguards) needsObjectMetadata() bool {
	return len(s.ProtectedMetadata) > 0 || s.Override != ""
}

// Rule is one prioritized policy rule. Rules are immutable configuration,
// loaded per run.
type Rule struct {
	ID   string `mapstructure:"id" json:"id" validate:"required"`
	Name string `mapstructure:"name" json:"name,omitempty"`

	// Enabled defaults to true when omitted from the document.
	Enabled *bool `mapstructure:"enabled" json:"enabled,omitempty"`

	// Priority orders evaluation; lower numbers are evaluated first.
	Priority int `mapstructure:"priority" json:"priority"`

	Conditions RuleConditions `mapstructure:"conditions" json:"conditions"`

	Action Action `mapstructure:"action" json:"action" validate:"required,oneof=none keep archive delete"`

	// ActionParams carry action-specific settings, such as
	// ArchivePrefixParam for archive rules.
	ActionParams map[string]string `mapstructure:"action_params" json:"action_params,omitempty"`

	Safeguards Safeguards `mapstructure:"safeguards" json:"safeguards,omitempty"`
}

// IsEnabled reports whether the rule participates in evaluation.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Policy is a full lifecycle policy document.
type Policy struct {
	Rules []Rule `mapstructure:"rules" json:"rules" validate:"dive"`

	// GlobalSafeguards are checked against a hypothetical delete before
	// any rule runs.
	GlobalSafeguards Safeguards `mapstructure:"global_safeguards" json:"global_safeguards,omitempty"`

	// ArchivePrefix prefixes archived keys (default "archive/").
	ArchivePrefix string `mapstructure:"archive_prefix" json:"archive_prefix,omitempty"`

	// Audit toggles audit-log appends during execution; defaults to on.
	Audit *bool `mapstructure:"audit" json:"audit,omitempty"`
}

// ApplyDefaults fills in zero-value fields with defaults.
func (p *Policy) ApplyDefaults() {
	if p.ArchivePrefix == "" {
		p.ArchivePrefix = DefaultArchivePrefix
	}
}

// AuditEnabled reports whether executed actions should be audited.
func (p *Policy) AuditEnabled() bool {
	return p.Audit == nil || *p.Audit
}

// NeedsObjectMetadata reports whether evaluating this policy requires the
// full object metadata rather than the fields a listing already carries.
func (p *Policy) NeedsObjectMetadata() bool {
	if p.GlobalSafeguards.needsObjectMetadata() {
		return true
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.IsEnabled() {
			continue
		}
		if r.Conditions.needsObjectMetadata() || r.Safeguards.needsObjectMetadata() {
			return true
		}
	}
	return false
}

// Validate checks structure and semantics: struct tags, unique rule ids,
// known file kinds, consistent bounds, and that every referenced
// predicate name resolves in reg.
func (p *Policy) Validate(reg *PredicateRegistry) error {
	if err := validation.Validate(p); err != nil {
		return err
	}

	var errs []error
	requirePredicate := func(ruleID, name string) {
		if name != "" && !reg.Has(name) {
			errs = append(errs, fmt.Errorf("rule %q: unknown predicate %q", ruleID, name))
		}
	}

	seen := make(map[string]bool, len(p.Rules))
	for i := range p.Rules {
		r := &p.Rules[i]
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate rule id %q", r.ID))
		}
		seen[r.ID] = true

		for _, k := range r.Conditions.FileKinds {
			if ParseKind(string(k)) == FileKindUnknown {
				errs = append(errs, fmt.Errorf("rule %q: unknown file kind %q", r.ID, k))
			}
		}
		c := &r.Conditions
		if c.MinAgeDays != nil && c.MaxAgeDays != nil && *c.MinAgeDays > *c.MaxAgeDays {
			errs = append(errs, fmt.Errorf("rule %q: min_age_days exceeds max_age_days", r.ID))
		}
		if c.MinSizeBytes != nil && c.MaxSizeBytes != nil && *c.MinSizeBytes > *c.MaxSizeBytes {
			errs = append(errs, fmt.Errorf("rule %q: min_size_bytes exceeds max_size_bytes", r.ID))
		}
		requirePredicate(r.ID, c.Predicate)
		requirePredicate(r.ID, r.Safeguards.Override)
	}

	if name := p.GlobalSafeguards.Override; name != "" && !reg.Has(name) {
		errs = append(errs, fmt.Errorf("global safeguards: unknown predicate %q", name))
	}

	return errors.Join(errs...)
}
