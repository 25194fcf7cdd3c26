package service

import (
	"regexp"
)

// contentHashPattern matches a CIDv0 (base58 "Qm", 46 chars) or a base32 CIDv1.
var contentHashPattern = regexp.MustCompile(`\b(Qm[1-9A-HJ-NP-Za-km-z]{44}|baf[yk][a-z2-7]{50,})\b`)

// DeliverableRef returns the content hash embedded in a deliverable URL, or a
// per-job placeholder when the URL does not point at content-addressed storage.
func DeliverableRef(jobID, deliverableURL string) string {
	if m := contentHashPattern.FindString(deliverableURL); m != "" {
		return m
	}
	return "completion-confirmed-" + jobID
}
