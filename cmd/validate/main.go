// Command validate checks a scored incident fixture produced by cmd/score:
// signal ranges, the priority product, derived labels, district and
// authority closure, and that re-scoring every incident reproduces the
// stored scores exactly.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -in data/mock/kerala_reports_scored.json \
//	  -disaster-zones Wayanad,Idukki
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/adapter/memory"
	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/couchcryptid/incident-triage-service/internal/scoring"
	"github.com/couchcryptid/incident-triage-service/internal/trust"
	"github.com/couchcryptid/incident-triage-service/internal/zone"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const epsilon = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	in := flag.String("in", "", "path to the scored incident fixture")
	tz := flag.String("tz", "Asia/Kolkata", "time zone used when the fixture was scored")
	zones := flag.String("disaster-zones", "", "disaster zones used when the fixture was scored")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*in, *tz, *zones); code != 0 {
		os.Exit(code)
	}
}

func run(path, tz, zones string) int {
	fmt.Println("=== Scored Incident Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read fixture: %v\n", err)
		return 1
	}
	var incidents []domain.Incident
	if err := json.Unmarshal(data, &incidents); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode fixture: %v\n", err)
		return 1
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load -tz: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRanges(incidents),
		validateLabels(incidents),
		validateZones(incidents),
		validateReproducible(incidents, loc, strings.Split(zones, ",")),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}
	fmt.Println()
	fmt.Printf("Incidents: %d\n", len(incidents))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func inRange(v, lo, hi float64) bool {
	return v >= lo-epsilon && v <= hi+epsilon
}

func validateRanges(incidents []domain.Incident) *phase {
	p := &phase{name: "Signal ranges and priority product"}
	for _, inc := range incidents {
		s := inc.Scores
		if !inRange(s.Severity, 0, 1) {
			p.errorf("%s: severity %.4f out of [0,1]", inc.ID, s.Severity)
		}
		if !inRange(s.Trust, trust.MinTrust, 1) {
			p.errorf("%s: trust %.4f out of [%.1f,1]", inc.ID, s.Trust, trust.MinTrust)
		}
		if !inRange(s.Evidence, 0, 1) {
			p.errorf("%s: evidence %.4f out of [0,1]", inc.ID, s.Evidence)
		}
		if !inRange(s.ContextRisk, 0, 1) {
			p.errorf("%s: context risk %.4f out of [0,1]", inc.ID, s.ContextRisk)
		}
		if slices.Contains(s.ContextFactors, "disaster_zone") && s.ContextRisk < scoring.DisasterZoneFloor-epsilon {
			p.errorf("%s: disaster zone context risk %.4f below floor", inc.ID, s.ContextRisk)
		}
		product := s.Severity * s.Trust * s.Evidence * s.ContextRisk
		if math.Abs(product-s.FinalPriority) > epsilon {
			p.errorf("%s: final priority %.6f != product %.6f", inc.ID, s.FinalPriority, product)
		}
	}
	return p
}

func validateLabels(incidents []domain.Incident) *phase {
	p := &phase{name: "Derived labels"}
	for _, inc := range incidents {
		s := inc.Scores
		if want := domain.ClassifyAction(s.FinalPriority); s.Action != want {
			p.errorf("%s: action %s, want %s", inc.ID, s.Action, want)
		}
		if want := scoring.CrisisLevel(s.Severity); s.CrisisLevel != want {
			p.errorf("%s: crisis level %s, want %s", inc.ID, s.CrisisLevel, want)
		}
		if want := scoring.EvidenceQuality(s.Evidence); s.EvidenceQuality != want {
			p.errorf("%s: evidence quality %s, want %s", inc.ID, s.EvidenceQuality, want)
		}
		if want := trust.Level(s.Trust); s.TrustLevel != want {
			p.errorf("%s: trust level %s, want %s", inc.ID, s.TrustLevel, want)
		}
		if inc.Status != domain.StatusPending || inc.Forwarded {
			p.errorf("%s: freshly scored incident is %s (forwarded=%t)", inc.ID, inc.Status, inc.Forwarded)
		}
	}
	return p
}

func validateZones(incidents []domain.Incident) *phase {
	p := &phase{name: "District and authority closure"}
	for _, inc := range incidents {
		canon, ok := zone.Canonical(inc.District)
		if !ok {
			p.errorf("%s: unknown district %q", inc.ID, inc.District)
			continue
		}
		if canon != inc.District {
			p.errorf("%s: district %q is not canonical (%q)", inc.ID, inc.District, canon)
		}
		if _, err := zone.AuthorityFor(canon); err != nil {
			p.errorf("%s: %v", inc.ID, err)
		}
	}
	return p
}

// validateReproducible re-scores each incident as a first report from a new
// reporter at its recorded submission time.
func validateReproducible(incidents []domain.Incident, loc *time.Location, disasterZones []string) *phase {
	p := &phase{name: "Re-scoring reproduces stored scores"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	ctx := context.Background()

	for _, inc := range incidents {
		// Fresh ledger per incident: the fixture scores every report as the
		// reporter's first.
		ledger := trust.NewLedger(memory.NewTrustStore(), logger)
		engine := scoring.NewEngine(ledger, zone.NewProfiles(disasterZones), scoring.NewContextModel(loc), time.Second, logger, metrics)

		got, err := engine.Compute(ctx, inc)
		if err != nil {
			p.errorf("%s: compute: %v", inc.ID, err)
			continue
		}
		if diff := cmp.Diff(inc.Scores, got, cmpopts.EquateEmpty(), cmpopts.EquateApprox(0, epsilon)); diff != "" {
			p.errorf("%s: scores differ (-stored +recomputed):\n%s", inc.ID, diff)
		}
	}
	return p
}
