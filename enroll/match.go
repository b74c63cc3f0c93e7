package enroll

import "github.com/wippyai/capture-bridge/bridge"

// DefaultThreshold is the minimum score for a match.
const DefaultThreshold = 85

// Match is the best-scoring enrollment for a scanned template.
type Match struct {
	EnrollmentID string `json:"enrollmentId,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Score        int    `json:"score"`
	Matched      bool   `json:"matched"`
}

// Score rates the similarity of two templates from 0 to 100. The templates
// are compared in their encoded form, position by position, over the longer
// encoding, so scores agree with clients that hold only templateEncoded.
func Score(a, b []byte) int {
	return ScoreEncoded(bridge.EncodeTemplate(a), bridge.EncodeTemplate(b))
}

// ScoreEncoded is Score over two encoded templates. An empty template scores 0.
func ScoreEncoded(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	longer, shorter := len(a), len(b)
	if shorter > longer {
		longer, shorter = shorter, longer
	}

	equal := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			equal++
		}
	}
	return (equal*200 + longer) / (2 * longer)
}

// Find scores scanned against every record. The highest score wins, ties go
// to the earlier record. The result is matched when the score reaches
// threshold; otherwise it still reports the best score seen.
func Find(scanned []byte, records []Record, threshold int) (Match, bool) {
	best := Match{Score: -1}
	for _, rec := range records {
		if s := Score(scanned, rec.Template); s > best.Score {
			best = Match{EnrollmentID: rec.ID, Subject: rec.Subject, Score: s}
		}
	}
	if best.Score < 0 {
		return Match{}, false
	}
	if best.Score < threshold {
		return Match{Score: best.Score}, false
	}
	best.Matched = true
	return best, true
}
