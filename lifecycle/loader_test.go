package lifecycle

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const policyYAML = `
archive_prefix: cold/
audit: false
global_safeguards:
  protected_prefixes:
    - albums/keepsakes/
  max_deletions_per_run: 50
rules:
  - id: purge-old-thumbnails
    name: Purge old thumbnails
    priority: 10
    conditions:
      min_age_days: 30
      file_kinds: [thumbnail, preview]
      exclude_prefixes:
        - albums/favorites/
    action: delete
  - id: archive-cold-originals
    priority: 20
    enabled: false
    conditions:
      min_age_since_access_days: 180
      metadata_equals:
        tier: cold
    action: archive
    action_params:
      archive_prefix: glacier/
`

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(strings.NewReader(policyYAML))
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}

	if p.ArchivePrefix != "cold/" {
		t.Errorf("ArchivePrefix = %q, want cold/", p.ArchivePrefix)
	}
	if p.AuditEnabled() {
		t.Error("AuditEnabled() = true, want false from document")
	}
	if got := p.GlobalSafeguards.ProtectedPrefixes; !reflect.DeepEqual(got, []string{"albums/keepsakes/"}) {
		t.Errorf("ProtectedPrefixes = %v", got)
	}
	if p.GlobalSafeguards.MaxDeletionsPerRun == nil || *p.GlobalSafeguards.MaxDeletionsPerRun != 50 {
		t.Errorf("MaxDeletionsPerRun = %v, want 50", p.GlobalSafeguards.MaxDeletionsPerRun)
	}

	if len(p.Rules) != 2 {
		t.Fatalf("len(Rules) = %d, want 2", len(p.Rules))
	}

	purge := p.Rules[0]
	if purge.ID != "purge-old-thumbnails" || purge.Priority != 10 || purge.Action != ActionDelete {
		t.Errorf("rule 0 = %+v", purge)
	}
	if !purge.IsEnabled() {
		t.Error("rule 0 should default to enabled")
	}
	if purge.Conditions.MinAgeDays == nil || *purge.Conditions.MinAgeDays != 30 {
		t.Errorf("MinAgeDays = %v, want 30", purge.Conditions.MinAgeDays)
	}
	if got := purge.Conditions.FileKinds; !reflect.DeepEqual(got, []FileKind{FileKindThumbnail, FileKindPreview}) {
		t.Errorf("FileKinds = %v", got)
	}
	if got := purge.Conditions.ExcludePrefixes; !reflect.DeepEqual(got, []string{"albums/favorites/"}) {
		t.Errorf("ExcludePrefixes = %v", got)
	}

	archive := p.Rules[1]
	if archive.IsEnabled() {
		t.Error("rule 1 should be disabled by the document")
	}
	if archive.Conditions.MinAgeSinceAccessDays == nil || *archive.Conditions.MinAgeSinceAccessDays != 180 {
		t.Errorf("MinAgeSinceAccessDays = %v, want 180", archive.Conditions.MinAgeSinceAccessDays)
	}
	if got := archive.Conditions.MetadataEquals["tier"]; got != "cold" {
		t.Errorf("MetadataEquals[tier] = %q, want cold", got)
	}
	if got := archive.ActionParams[ArchivePrefixParam]; got != "glacier/" {
		t.Errorf("ActionParams[%s] = %q, want glacier/", ArchivePrefixParam, got)
	}

	if err := p.Validate(NewPredicateRegistry()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParsePolicyAppliesDefaults(t *testing.T) {
	p, err := ParsePolicy(strings.NewReader("rules: []\n"))
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if p.ArchivePrefix != DefaultArchivePrefix {
		t.Errorf("ArchivePrefix = %q, want default", p.ArchivePrefix)
	}
	if !p.AuditEnabled() {
		t.Error("AuditEnabled() = false, want default true")
	}
}

func TestParsePolicyMalformedDocument(t *testing.T) {
	_, err := ParsePolicy(strings.NewReader("rules: ["))
	if err == nil {
		t.Fatal("ParsePolicy: expected error for malformed YAML")
	}
	if !strings.Contains(err.Error(), "read policy") {
		t.Errorf("error = %q, want read policy wrapper", err)
	}
}

func TestParsePolicyTypeMismatch(t *testing.T) {
	doc := "rules:\n  - id: r\n    action: delete\n    conditions:\n      min_age_days: soon\n"
	_, err := ParsePolicy(strings.NewReader(doc))
	if err == nil {
		t.Fatal("ParsePolicy: expected decode error for non-numeric age")
	}
	if !strings.Contains(err.Error(), "decode policy") {
		t.Errorf("error = %q, want decode policy wrapper", err)
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(policyYAML), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	if len(p.Rules) != 2 || p.Rules[0].ID != "purge-old-thumbnails" {
		t.Errorf("rules = %+v, want parsed document", p.Rules)
	}
}

func TestLoadPolicyFileMissing(t *testing.T) {
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadPolicyFile: expected error for missing file")
	}
}
