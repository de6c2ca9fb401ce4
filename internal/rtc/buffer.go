package rtc

import "github.com/akkalaj75/hostelhub-v40/internal/models"

// CandidateBuffer 원격 설명이 설정되기 전에 도착한 후보를 수신 순서대로 보관
type CandidateBuffer struct {
	items []models.CandidateRecord
}

// Push 후보 추가
func (b *CandidateBuffer) Push(rec models.CandidateRecord) {
	b.items = append(b.items, rec)
}

// Drain 보관된 후보를 순서대로 꺼내고 비움
func (b *CandidateBuffer) Drain() []models.CandidateRecord {
	items := b.items
	b.items = nil
	return items
}

// Len 보관 중인 후보 수
func (b *CandidateBuffer) Len() int {
	return len(b.items)
}
