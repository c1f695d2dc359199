package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sean-she/photoflow-storage/component"
	"github.com/sean-she/photoflow-storage/di"
)

// Summary renders the startup banner: service identity, registered
// infrastructure, DI registrations, and a live health pass.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
}

// NewSummary builds a Summary for the named service.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// DisplaySummary prints the banner to stdout. Both arguments tolerate
// nil; empty sections are left out entirely.
func (s *Summary) DisplaySummary(registry *component.Registry, container di.Container) {
	fmt.Printf("\n🚀 %s v%s started in %.2fs\n\n",
		s.serviceName, s.version, s.startupDuration.Seconds())

	infra, plain := componentRows(registry)
	section("📊 Infrastructure", infra)
	section("📦 Components", plain)

	deps := dependencyRows(container)
	section(fmt.Sprintf("🔗 Dependencies (%d)", len(deps)), deps)

	printHealth(registry)
	fmt.Println()
}

// section prints a titled block with tree-drawn rows, or nothing when
// there are no rows.
func section(title string, rows []string) {
	if len(rows) == 0 {
		return
	}
	fmt.Println(title)
	for i, row := range rows {
		branch := "├──"
		if i == len(rows)-1 {
			branch = "└──"
		}
		fmt.Printf("   %s %s\n", branch, row)
	}
	fmt.Println()
}

// componentRows splits registered components into described
// infrastructure and plain names.
func componentRows(registry *component.Registry) (infra, plain []string) {
	if registry == nil {
		return nil, nil
	}
	for _, c := range registry.All() {
		d, ok := c.(component.Describable)
		if !ok {
			plain = append(plain, c.Name())
			continue
		}
		desc := d.Describe()
		if desc.Name == "" {
			desc.Name = c.Name()
		}
		infra = append(infra, fmt.Sprintf("%s [%s] %s", desc.Name, desc.Type, desc.Details))
	}
	return infra, plain
}

func dependencyRows(container di.Container) []string {
	if container == nil {
		return nil
	}
	regs := container.Registrations()
	rows := make([]string, 0, len(regs))
	for _, r := range regs {
		icon := "⚡"
		if r.Initialized {
			icon = "✅"
		}
		rows = append(rows, fmt.Sprintf("%s %s (%s)", icon, r.Key, modeName(r.Mode)))
	}
	return rows
}

func printHealth(registry *component.Registry) {
	if registry == nil {
		return
	}
	results := registry.HealthAll(context.Background())
	if len(results) == 0 {
		fmt.Printf("   └── No components registered\n")
		return
	}

	healthy := 0
	rows := make([]string, 0, len(results))
	for _, h := range results {
		if h.Status == component.StatusHealthy {
			healthy++
		}
		row := fmt.Sprintf("%s %s: %s", healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)))
		if h.Message != "" {
			row += " (" + h.Message + ")"
		}
		rows = append(rows, row)
	}
	section("🏥 Health Check", rows)

	if healthy == len(results) {
		fmt.Printf("✅ All components healthy (%d/%d)\n", healthy, len(results))
	} else {
		fmt.Printf("⚠️  Some components have issues (%d/%d healthy)\n", healthy, len(results))
	}
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}

func modeName(m di.RegistrationMode) string {
	switch m {
	case di.Eager:
		return "eager"
	case di.Lazy:
		return "lazy"
	case di.Singleton:
		return "singleton"
	default:
		return "unknown"
	}
}
