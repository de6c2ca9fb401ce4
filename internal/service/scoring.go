package service

import (
	"sort"
	"strings"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
)

// InterestScore 두 관심사 목록의 겹침 정도 (0~1)
// 대소문자를 무시한 공통 관심사 수를 큰 쪽 목록 크기로 나눈다
func InterestScore(a, b []string) float64 {
	setA := interestSet(a)
	setB := interestSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(setA), len(setB)))
}

// CommonInterests a의 순서를 유지한 공통 관심사 (소문자)
func CommonInterests(a, b []string) []string {
	setB := interestSet(b)
	seen := make(map[string]struct{})
	var out []string
	for _, i := range a {
		k := strings.ToLower(strings.TrimSpace(i))
		if _, ok := setB[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func interestSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, i := range list {
		if k := strings.ToLower(strings.TrimSpace(i)); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Compatible 후보가 내 조건을 만족하는지 확인
//   - 자기 자신과 차단한 사용자는 제외
//   - 대학은 어느 한쪽이 ANY이거나 서로 같아야 함
//   - 성별은 정확히 일치해야 함
func Compatible(self, candidate *models.WaitingEntry, blocked func(string) bool) bool {
	if candidate.UserID == "" || candidate.UserID == self.UserID {
		return false
	}
	if blocked != nil && blocked(candidate.UserID) {
		return false
	}
	if self.CollegeFilter != models.AnyCollege && candidate.CollegeFilter != models.AnyCollege &&
		self.CollegeFilter != candidate.CollegeFilter {
		return false
	}
	return candidate.GenderFilter == self.GenderFilter
}

// RankedCandidate 점수가 매겨진 후보
type RankedCandidate struct {
	Entry *models.WaitingEntry
	Score float64
}

// RankCandidates 조건에 맞는 후보를 점수 내림차순으로 정렬
// 점수가 같으면 조회된 순서(오래된 순)를 유지한다
func RankCandidates(self *models.WaitingEntry, candidates []*models.WaitingEntry, blocked func(string) bool) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !Compatible(self, c, blocked) {
			continue
		}
		ranked = append(ranked, RankedCandidate{Entry: c, Score: InterestScore(self.Interests, c.Interests)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
