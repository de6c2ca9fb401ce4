package moderation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// AbuseReport 부적절한 내용 판정 결과
type AbuseReport struct {
	IsAbusive       bool
	Severity        float64
	Reasons         []string
	ShouldAutoBlock bool
}

func wordList(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var (
	profanity = wordList(
		"fuck", "fucking", "shit", "bitch", "asshole", "bastard",
		"damn", "crap", "piss", "slut", "whore",
	)
	sexual = wordList(
		"nudes", "nude", "dick pic", "send pic", "send pics",
		"sex", "sexy", "hot pic", "boobs", "ass pic",
	)
	harassment = []*regexp.Regexp{
		regexp.MustCompile(`\bkill\s*(?:yourself|urself)\b`),
		regexp.MustCompile(`\bgo\s*die\b`),
		regexp.MustCompile(`\bkys\b`),
		regexp.MustCompile(`\bhang\s*yourself\b`),
	}
)

// DetectAbuse 욕설(1), 성적 표현(2), 괴롭힘(3), 대문자 도배(0.5) 점수 합산
func DetectAbuse(text string) AbuseReport {
	lower := strings.ToLower(text)
	var report AbuseReport

	if profanity.MatchString(lower) {
		report.Severity += 1
		report.Reasons = append(report.Reasons, "profanity")
	}
	if sexual.MatchString(lower) {
		report.Severity += 2
		report.Reasons = append(report.Reasons, "sexual")
	}
	for _, p := range harassment {
		if p.MatchString(lower) {
			report.Severity += 3
			report.Reasons = append(report.Reasons, "harassment")
			break
		}
	}

	length := utf8.RuneCountInString(text)
	if length > 10 {
		upper := 0
		for _, r := range text {
			if r >= 'A' && r <= 'Z' {
				upper++
			}
		}
		if float64(upper)/float64(length) > 0.7 {
			report.Severity += 0.5
			report.Reasons = append(report.Reasons, "caps")
		}
	}

	report.IsAbusive = report.Severity >= 1
	report.ShouldAutoBlock = report.Severity >= 3
	return report
}
