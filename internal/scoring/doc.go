// Package scoring turns a citizen report into a trust-weighted priority.
//
// Four independent signals are computed concurrently and multiplied:
//
//	severity  keyword groups over the normalized description
//	trust     the reporter's ledger profile
//	evidence  fixed table over the attachment modality
//	context   weighted average of density, time-of-day, and weather tiers
//
// The product is conjunctive: any near-zero factor suppresses the whole
// score. Context is a weighted average rather than a product so it can
// moderate a report but never veto it.
package scoring
