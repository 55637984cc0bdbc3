// Command score runs a fixture of citizen reports through the real scoring
// and lifecycle code and writes the scored incidents as JSON. Every reporter
// is new and the clock is fixed, so the output is reproducible and can be
// checked with cmd/validate.
//
// Usage:
//
//	go run ./cmd/score \
//	  -in data/mock/kerala_reports.json \
//	  -out data/mock/kerala_reports_scored.json \
//	  -disaster-zones Wayanad,Idukki
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/adapter/memory"
	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/lifecycle"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/couchcryptid/incident-triage-service/internal/scoring"
	"github.com/couchcryptid/incident-triage-service/internal/trust"
	"github.com/couchcryptid/incident-triage-service/internal/zone"
	"github.com/jonboulle/clockwork"
)

// defaultAt is mid-afternoon IST, outside the night and rush-hour windows.
const defaultAt = "2024-07-30T09:00:00Z"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("in", "", "path to a JSON array of report submissions")
	out := flag.String("out", "", "output path for scored incidents")
	at := flag.String("at", defaultAt, "RFC3339 submission time applied to every report")
	tz := flag.String("tz", "Asia/Kolkata", "time zone for the time-of-day factor")
	zones := flag.String("disaster-zones", "", "comma-separated districts under a disaster declaration")
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -in, -out")
	}

	submitted, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		return fmt.Errorf("parse -at: %w", err)
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("load -tz: %w", err)
	}

	domain.SetClock(clockwork.NewFakeClockAt(submitted))
	defer domain.SetClock(nil)

	reqs, err := readJSON[[]lifecycle.SubmitRequest](*in)
	if err != nil {
		return fmt.Errorf("reading fixture: %w", err)
	}

	svc := newService(loc, splitList(*zones))
	ctx := context.Background()

	incidents := make([]domain.Incident, 0, len(reqs))
	for i, req := range reqs {
		inc, err := svc.Submit(ctx, req)
		if err != nil {
			return fmt.Errorf("report %d (%s): %w", i, req.ReporterID, err)
		}
		incidents = append(incidents, inc)
	}
	log.Printf("scored %d reports", len(incidents))

	if err := writeJSON(*out, incidents); err != nil {
		return fmt.Errorf("writing scored fixture: %w", err)
	}
	log.Printf("wrote scored fixture: %s", *out)

	printStats(incidents)
	return nil
}

// newService wires the lifecycle on in-memory stores with no geocoder, so
// coordinates resolve through the latitude bands.
func newService(loc *time.Location, disasterZones []string) *lifecycle.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	ledger := trust.NewLedger(memory.NewTrustStore(), logger)
	engine := scoring.NewEngine(ledger, zone.NewProfiles(disasterZones), scoring.NewContextModel(loc), time.Second, logger, metrics)
	resolver := zone.NewResolver(nil, time.Second, logger, metrics)
	return lifecycle.NewService(memory.NewIncidentStore(), ledger, engine, resolver, logger, metrics)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readJSON[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type count struct {
	key   string
	count int
}

func sortedCounts(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, c := range m {
		out = append(out, count{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func printCounts(label string, m map[string]int) {
	fmt.Printf("%s:", label)
	for _, c := range sortedCounts(m) {
		fmt.Printf(" %s=%d", c.key, c.count)
	}
	fmt.Println()
}

func printStats(incidents []domain.Incident) {
	actions := map[string]int{}
	types := map[string]int{}
	districts := map[string]int{}
	authorities := map[string]int{}
	for i := range incidents {
		inc := &incidents[i]
		actions[string(inc.Scores.Action)]++
		types[inc.Scores.EmergencyType]++
		districts[inc.District]++
		if a, err := zone.AuthorityFor(inc.District); err == nil {
			authorities[a]++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(incidents))
	printCounts("By action", actions)
	printCounts("By type", types)
	printCounts("By district", districts)
	printCounts("By authority", authorities)

	ranked := make([]domain.Incident, len(incidents))
	copy(ranked, incidents)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.FinalPriority > ranked[j].Scores.FinalPriority
	})
	fmt.Println("\nPriority ranking:")
	for _, inc := range ranked {
		s := inc.Scores
		fmt.Printf("  %.4f %-8s %-16s %-18s sev=%.2f trust=%.2f ev=%.2f ctx=%.2f %v\n",
			s.FinalPriority, s.Action, s.EmergencyType, inc.District,
			s.Severity, s.Trust, s.Evidence, s.ContextRisk, s.ContextFactors)
	}
}
