package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
)

const (
	callsCollection      = "calls"
	candidatesCollection = "candidates"
	messagesCollection   = "messages"
)

func callPath(callID string) string {
	return docstore.Join(callsCollection, callID)
}

func candidatesPath(callID string) string {
	return docstore.Join(callsCollection, callID, candidatesCollection)
}

func messagesPath(callID string) string {
	return docstore.Join(callsCollection, callID, messagesCollection)
}

type CallRepository struct {
	store docstore.Store
}

func NewCallRepository(store docstore.Store) *CallRepository {
	return &CallRepository{store: store}
}

// Claim 두 대기열 항목을 원자적으로 매칭
//
// 세션 문서가 이미 진행 중이면 실패하고, 두 항목이 모두 존재하며 아직
// searching 상태일 때만 세션을 만들고 두 항목을 matched로 표시한다.
// 경합에서 진 경우는 에러가 아니라 false를 반환한다.
func (r *CallRepository) Claim(ctx context.Context, self, target *models.WaitingEntry, now int64) (*models.CallSession, bool, error) {
	callID := models.SessionID(self.UserID, target.UserID)
	var call *models.CallSession

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		call = nil

		existing, err := tx.Get(callPath(callID))
		switch {
		case err == nil:
			var prev models.CallSession
			if err := existing.DataTo(&prev); err != nil || prev.Status != models.CallEnded {
				return nil
			}
		case !errors.Is(err, docstore.ErrNotFound):
			return err
		}

		selfEntry, err := readWaiting(tx, self.UserID)
		if err != nil || selfEntry == nil || !selfEntry.Searching {
			return err
		}
		targetEntry, err := readWaiting(tx, target.UserID)
		if err != nil || targetEntry == nil || !targetEntry.Searching {
			return err
		}

		c := &models.CallSession{
			ID:        callID,
			Users:     []string{self.UserID, target.UserID},
			Initiator: models.InitiatorOf(self.UserID, target.UserID),
			ClaimedBy: self.UserID,
			CommType:  selfEntry.CommType,
			Status:    models.CallConnecting,
			Profiles: map[string]models.Participant{
				self.UserID:   participantOf(selfEntry),
				target.UserID: participantOf(targetEntry),
			},
			Timestamp: now,
		}
		if err := tx.Set(callPath(callID), c); err != nil {
			return err
		}
		if err := tx.Merge(waitingPath(self.UserID), matchedPatch(callID, target.UserID)); err != nil {
			return err
		}
		if err := tx.Merge(waitingPath(target.UserID), matchedPatch(callID, self.UserID)); err != nil {
			return err
		}
		call = c
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("claim %s: %w", callID, err)
	}
	return call, call != nil, nil
}

func readWaiting(tx docstore.Tx, userID string) (*models.WaitingEntry, error) {
	doc, err := tx.Get(waitingPath(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry models.WaitingEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func participantOf(e *models.WaitingEntry) models.Participant {
	return models.Participant{
		UserID:    e.UserID,
		College:   e.CollegeFilter,
		Interests: e.Interests,
	}
}

func matchedPatch(callID, with string) map[string]any {
	return map[string]any{
		"searching":   false,
		"matched":     true,
		"callId":      callID,
		"matchedWith": with,
	}
}

func decodeCall(doc *docstore.Document) (*models.CallSession, error) {
	var call models.CallSession
	if err := doc.DataTo(&call); err != nil {
		return nil, err
	}
	call.ID = doc.ID
	return &call, nil
}

// Get 통화 문서 조회 (없으면 nil, nil)
func (r *CallRepository) Get(ctx context.Context, callID string) (*models.CallSession, error) {
	doc, err := r.store.Get(ctx, callPath(callID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return decodeCall(doc)
}

// Watch 통화 문서 구독
func (r *CallRepository) Watch(ctx context.Context, callID string) (*docstore.Stream[models.CallUpdate], error) {
	sub, err := r.store.WatchDocument(ctx, callPath(callID))
	if err != nil {
		return nil, fmt.Errorf("failed to watch call: %w", err)
	}
	return docstore.NewStream(sub, func(ev docstore.Event) (models.CallUpdate, bool) {
		call, err := decodeCall(ev.Doc)
		if err != nil {
			return models.CallUpdate{}, false
		}
		return models.CallUpdate{Call: call, Deleted: ev.Type == docstore.Removed}, true
	}), nil
}

// PublishOffer offer 기록 (ICE restart이면 이전 answer를 지운다)
func (r *CallRepository) PublishOffer(ctx context.Context, callID string, offer models.SessionDescription, iceRestart bool) error {
	patch := map[string]any{
		"offer":      offer,
		"answer":     nil,
		"iceRestart": iceRestart,
	}
	if err := r.store.Merge(ctx, callPath(callID), patch); err != nil {
		return fmt.Errorf("failed to publish offer: %w", err)
	}
	return nil
}

// PublishAnswer answer 기록
func (r *CallRepository) PublishAnswer(ctx context.Context, callID string, answer models.SessionDescription) error {
	if err := r.store.Merge(ctx, callPath(callID), map[string]any{"answer": answer}); err != nil {
		return fmt.Errorf("failed to publish answer: %w", err)
	}
	return nil
}

// RequestICERestart offer를 만들지 않는 쪽이 재협상을 요청
func (r *CallRepository) RequestICERestart(ctx context.Context, callID, userID string, at int64) error {
	patch := map[string]any{
		"iceRestartRequestedBy": userID,
		"iceRestartRequestedAt": at,
	}
	if err := r.store.Merge(ctx, callPath(callID), patch); err != nil {
		return fmt.Errorf("failed to request ice restart: %w", err)
	}
	return nil
}

// AddCandidate 후보 추가
func (r *CallRepository) AddCandidate(ctx context.Context, callID string, rec models.CandidateRecord) (string, error) {
	id, err := r.store.Add(ctx, candidatesPath(callID), rec)
	if err != nil {
		return "", fmt.Errorf("failed to add candidate: %w", err)
	}
	return id, nil
}

// WatchCandidates 추가된 후보 구독
func (r *CallRepository) WatchCandidates(ctx context.Context, callID string) (*docstore.Stream[models.CandidateRecord], error) {
	sub, err := r.store.WatchQuery(ctx, docstore.Query{Collection: candidatesPath(callID)})
	if err != nil {
		return nil, fmt.Errorf("failed to watch candidates: %w", err)
	}
	return docstore.NewStream(sub, func(ev docstore.Event) (models.CandidateRecord, bool) {
		var rec models.CandidateRecord
		if ev.Type != docstore.Added || ev.Doc.DataTo(&rec) != nil {
			return rec, false
		}
		rec.ID = ev.Doc.ID
		return rec, true
	}), nil
}

// AddMessage 채팅 메시지 추가
func (r *CallRepository) AddMessage(ctx context.Context, callID string, msg models.ChatMessage) (string, error) {
	id, err := r.store.Add(ctx, messagesPath(callID), msg)
	if err != nil {
		return "", fmt.Errorf("failed to add message: %w", err)
	}
	return id, nil
}

// ListMessages 저장된 메시지 조회 (오래된 순)
func (r *CallRepository) ListMessages(ctx context.Context, callID string) ([]models.ChatMessage, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: messagesPath(callID)})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	msgs := make([]models.ChatMessage, 0, len(docs))
	for _, doc := range docs {
		var m models.ChatMessage
		if err := doc.DataTo(&m); err != nil {
			continue
		}
		m.ID = doc.ID
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// WatchMessages 추가된 메시지 구독
func (r *CallRepository) WatchMessages(ctx context.Context, callID string) (*docstore.Stream[models.ChatMessage], error) {
	sub, err := r.store.WatchQuery(ctx, docstore.Query{Collection: messagesPath(callID)})
	if err != nil {
		return nil, fmt.Errorf("failed to watch messages: %w", err)
	}
	return docstore.NewStream(sub, func(ev docstore.Event) (models.ChatMessage, bool) {
		var m models.ChatMessage
		if ev.Type != docstore.Added || ev.Doc.DataTo(&m) != nil {
			return m, false
		}
		m.ID = ev.Doc.ID
		return m, true
	}), nil
}

// MarkEnded 통화 종료 표시 (문서가 없으면 아무것도 하지 않음)
func (r *CallRepository) MarkEnded(ctx context.Context, callID string) error {
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(callPath(callID)); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		}
		return tx.Merge(callPath(callID), map[string]any{"status": models.CallEnded})
	})
	if err != nil {
		return fmt.Errorf("failed to mark call ended: %w", err)
	}
	return nil
}

// DrainCandidates 후보 하위 컬렉션 전체 삭제
func (r *CallRepository) DrainCandidates(ctx context.Context, callID string, batchSize int) (int, error) {
	return docstore.DrainCollection(ctx, r.store, candidatesPath(callID), batchSize)
}

// DrainMessages 메시지 하위 컬렉션 전체 삭제
func (r *CallRepository) DrainMessages(ctx context.Context, callID string, batchSize int) (int, error) {
	return docstore.DrainCollection(ctx, r.store, messagesPath(callID), batchSize)
}

// Delete 통화 문서 삭제
func (r *CallRepository) Delete(ctx context.Context, callID string) error {
	if err := r.store.Delete(ctx, callPath(callID)); err != nil {
		return fmt.Errorf("failed to delete call: %w", err)
	}
	return nil
}
