package moderation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reason 메시지 차단 사유
type Reason string

const (
	ReasonContactInfo Reason = "contact_info"
	ReasonAbusive     Reason = "abusive"
)

// Verdict 발신 메시지 검사 결과
type Verdict struct {
	Allowed bool
	Reason  Reason
	Abuse   AbuseReport
}

// Check 발신 메시지를 통과시킬지 판정 (연락처가 먼저 검사된다)
func Check(text string) Verdict {
	if DetectContactInfo(text) {
		return Verdict{Reason: ReasonContactInfo}
	}
	if abuse := DetectAbuse(text); abuse.IsAbusive {
		return Verdict{Reason: ReasonAbusive, Abuse: abuse}
	}
	return Verdict{Allowed: true}
}

// Truncate 공백을 제거하고 최대 max 글자로 자름
func Truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}

var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize 표시용 입력 정리 (HTML 특수문자 이스케이프 후 길이 제한)
func Sanitize(text string, max int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	escaped := htmlEscaper.Replace(text)
	if max > 0 && utf8.RuneCountInString(escaped) > max {
		escaped = string([]rune(escaped)[:max])
	}
	return escaped
}

var (
	ErrInterestEmpty    = errors.New("interest cannot be empty")
	ErrInterestShort    = errors.New("interest too short")
	ErrInterestLong     = errors.New("interest too long (max 20 chars)")
	ErrInterestCharset  = errors.New("only letters and numbers allowed")
	interestCharPattern = regexp.MustCompile(`^[a-zA-Z0-9\s]+$`)
)

// ValidateInterest 관심사 태그 검증 후 소문자로 정규화
func ValidateInterest(interest string) (string, error) {
	trimmed := strings.TrimSpace(interest)
	switch {
	case trimmed == "":
		return "", ErrInterestEmpty
	case len(trimmed) < 2:
		return "", ErrInterestShort
	case len(trimmed) > 20:
		return "", ErrInterestLong
	case !interestCharPattern.MatchString(trimmed):
		return "", ErrInterestCharset
	}
	return strings.ToLower(trimmed), nil
}
