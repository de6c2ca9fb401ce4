package docstore

import "context"

// DrainCollection 컬렉션이 빌 때까지 batchSize 단위로 삭제
// 배치 크기보다 적게 삭제된 배치를 관찰하면 종료하며 총 삭제 수를 반환한다
func DrainCollection(ctx context.Context, store Store, collection string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := store.DeleteBatch(ctx, collection, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < batchSize {
			return total, nil
		}
	}
}
