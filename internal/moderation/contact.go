package moderation

import (
	"regexp"
	"strings"
)

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{10}\b`),
	regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	regexp.MustCompile(`\b\d{5}\s?\d{5}\b`),
	regexp.MustCompile(`\+\d{1,3}[\s-]?\d{8,12}\b`),
}

var emailPattern = regexp.MustCompile(`@\w+\.\w+`)

const socialNames = `instagram|insta|facebook|whatsapp|whats\s*app|snapchat|telegram|twitter|discord|tiktok|tik\s*tok`

// 짧은 별칭(ig, fb, wa, x ...)은 일반 단어와 겹치므로 명시적인 구분자가 있어야 한다
var socialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:` + socialNames + `)\s*[:@/#]+\s*[\w.]+`),
	regexp.MustCompile(`\b(?:` + socialNames + `)\s+@?[a-z]*[._\d][\w.]*`),
	regexp.MustCompile(`\b(?:ig|fb|wa|x|tele|snap)\s*[:@]+\s*[\w.]+`),
}

var obfuscationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:dm|d\s*m)\s*(?:me|m3)\b`),
	regexp.MustCompile(`\b(?:text|txt)\s*(?:me|m3)\b`),
	regexp.MustCompile(`\b(?:call|cal1)\s*(?:me|m3)\b`),
	regexp.MustCompile(`\b(?:add|ad)\s*(?:me|m3)\b`),
	regexp.MustCompile(`\bat\s*the\s*rate`),
	regexp.MustCompile(`\bdot\s*com`),
	regexp.MustCompile(`\b(?:zero|one|two|three|four|five|six|seven|eight|nine)\s*\d`),
}

// DetectContactInfo 전화번호, 이메일, SNS 계정, 우회 표현 탐지
func DetectContactInfo(text string) bool {
	for _, p := range phonePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	if emailPattern.MatchString(text) {
		return true
	}

	lower := strings.ToLower(text)
	for _, p := range socialPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	for _, p := range obfuscationPatterns {
		if p.MatchString(lower) {
			return true
		}
	}

	digits := 0
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 8
}
