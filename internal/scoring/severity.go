package scoring

import (
	"regexp"
	"strings"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// Emergency types in tie-break order.
const (
	TypeFire            = "fire"
	TypeMedical         = "medical"
	TypeNaturalDisaster = "natural_disaster"
	TypeCrime           = "crime"
	TypeInfrastructure  = "infrastructure"
	TypeOther           = "other"
)

const (
	severityNoMatchBase  = 0.3
	corroborationStep    = 0.05
	corroborationCap     = 0.15
	urgencyStep          = 0.05
	urgencyCap           = 0.10
	densityFactor        = 0.2
	densityCap           = 0.05
	confidenceBase       = 0.4
	confidencePerMatch   = 0.15
	confidenceNoKeywords = 0.2
)

// Crisis levels derived from the severity score.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

type keyword struct {
	term   string
	weight float64
}

type keywordGroup struct {
	emergencyType string
	keywords      []keyword
}

// severityGroups is ordered by tie-break priority.
var severityGroups = []keywordGroup{
	{TypeFire, []keyword{
		{"explosion", 0.95},
		{"fire", 0.9},
		{"flames", 0.85},
		{"burning", 0.8},
		{"smoke", 0.7},
	}},
	{TypeMedical, []keyword{
		{"not breathing", 0.95},
		{"heart attack", 0.9},
		{"unconscious", 0.9},
		{"bleeding", 0.8},
		{"injured", 0.75},
		{"accident", 0.7},
		{"ambulance", 0.7},
		{"hurt", 0.6},
		{"medical", 0.6},
	}},
	{TypeNaturalDisaster, []keyword{
		{"tsunami", 0.95},
		{"earthquake", 0.9},
		{"landslide", 0.9},
		{"cyclone", 0.85},
		{"flood", 0.8},
		{"flooding", 0.8},
		{"storm", 0.6},
		{"heavy rain", 0.5},
	}},
	{TypeCrime, []keyword{
		{"bomb", 0.95},
		{"shooting", 0.95},
		{"terrorist", 0.95},
		{"stabbing", 0.9},
		{"assault", 0.8},
		{"robbery", 0.7},
		{"theft", 0.5},
	}},
	{TypeInfrastructure, []keyword{
		{"collapse", 0.9},
		{"collapsed", 0.9},
		{"gas leak", 0.85},
		{"live wire", 0.75},
		{"power outage", 0.5},
		{"damage", 0.5},
		{"broken", 0.4},
	}},
}

// urgencyTerms raise the score without implying an emergency type.
var urgencyTerms = []string{
	"trapped", "dying", "death", "emergency", "urgent", "immediately",
	"help", "panic", "danger", "people", "children", "many",
}

// Classification is the output of the severity classifier.
type Classification struct {
	Score         float64
	EmergencyType string
	CrisisLevel   string
	Keywords      []string
	Confidence    float64
}

// SeverityClassifier scores free text against weighted keyword groups.
type SeverityClassifier struct{}

// NewSeverityClassifier creates a SeverityClassifier.
func NewSeverityClassifier() *SeverityClassifier {
	return &SeverityClassifier{}
}

// Classify scores description. It never fails; empty or unmatched text
// yields the no-match base score with type other.
func (c *SeverityClassifier) Classify(description string) Classification {
	text, tokens := normalize(description)

	var (
		keywords    []string
		typed       int
		strongest   float64
		bestType    = TypeOther
		bestWeight  float64
		urgencyHits int
	)

	for _, g := range severityGroups {
		var accumulated float64
		for _, kw := range g.keywords {
			if !containsTerm(text, kw.term) {
				continue
			}
			keywords = append(keywords, kw.term)
			accumulated += kw.weight
			typed++
			if kw.weight > strongest {
				strongest = kw.weight
			}
		}
		// Strict comparison keeps the earlier group on ties.
		if accumulated > bestWeight {
			bestWeight = accumulated
			bestType = g.emergencyType
		}
	}

	for _, term := range urgencyTerms {
		if containsTerm(text, term) {
			keywords = append(keywords, term)
			urgencyHits++
		}
	}

	urgency := min(urgencyCap, float64(urgencyHits)*urgencyStep)

	var score float64
	if typed == 0 {
		score = severityNoMatchBase + urgency
	} else {
		corroboration := min(corroborationCap, float64(typed-1)*corroborationStep)
		density := min(densityCap, float64(typed+urgencyHits)/float64(tokens)*densityFactor)
		score = strongest + corroboration + urgency + density
	}
	score = domain.Clamp01(score)

	confidence := confidenceNoKeywords
	if typed > 0 {
		confidence = min(1.0, confidenceBase+confidencePerMatch*float64(typed))
	}

	return Classification{
		Score:         score,
		EmergencyType: bestType,
		CrisisLevel:   CrisisLevel(score),
		Keywords:      keywords,
		Confidence:    confidence,
	}
}

// CrisisLevel buckets a severity score.
func CrisisLevel(score float64) string {
	switch {
	case score >= 0.7:
		return LevelCritical
	case score >= 0.5:
		return LevelHigh
	case score >= 0.3:
		return LevelMedium
	default:
		return LevelLow
	}
}

// normalize lowercases s, replaces punctuation with spaces, and pads the
// result so every term can be matched on word boundaries.
func normalize(s string) (string, int) {
	fields := strings.Fields(nonAlnumRe.ReplaceAllString(strings.ToLower(s), " "))
	return " " + strings.Join(fields, " ") + " ", len(fields)
}

func containsTerm(text, term string) bool {
	return strings.Contains(text, " "+term+" ")
}
