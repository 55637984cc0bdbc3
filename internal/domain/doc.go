// Package domain models citizen emergency reports and the records derived
// from them during triage.
//
// # Reports
//
// A report arrives with a free-text description, an evidence attachment
// (camera capture, uploaded image, plain text, or nothing), optional
// coordinates, and optional citizen-supplied conditions (population density
// and weather tiers). The service derives the district, the score set, and
// the lifecycle state; citizens never set those directly.
//
// # Scores
//
// Every incident carries a [ScoreSet] computed once at submission:
//
//	FinalPriority = Severity × Trust × Evidence × ContextRisk
//
// All five values lie in [0,1]. The product is stored unrounded so the
// invariant holds exactly when re-evaluated. The action threshold is applied
// to the unrounded product:
//
//	≥ 0.7 DISPATCH | ≥ 0.4 VALIDATE | otherwise HOLD
//
// # Lifecycle
//
//	pending ──forward──▶ pending (forwarded, crisis open)
//	   │                    │
//	   │                 close crisis
//	   │                    ▼
//	   ├──resolve────▶ resolved ◀──resolve── verified
//	   └──dismiss────▶ resolved (false alarm)
//
// Forwarding is idempotent per incident: a second forward returns the crisis
// created by the first. Resolved is terminal.
//
// # Zones
//
// A zone is a district name from the closed table in package zone. Authority
// scoping (which regional authority owns a crisis) is always carried
// explicitly and is never inferred from the zone string.
package domain
