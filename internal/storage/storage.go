package storage

import "marketScope/internal/model"

// Storage defines a sink for decoded event records.
type Storage interface {
	PutEventBatch(events []model.EventRecord) error
}
