package export

import (
	"context"
	"errors"
)

// Record is a transaction that can be published. It must be JSON encodable.
type Record interface {
	// Key uniquely identifies the record within its chain.
	Key() string
}

// Batch is the result of one fetch, ready to be published.
type Batch struct {
	Chain   string
	Address string
	Records []Record
}

// Publisher delivers a Batch to an external sink.
type Publisher interface {
	Publish(ctx context.Context, batch Batch) error
	Close() error
}

// Records adapts a slice of concrete records to []Record.
func Records[T Record](items []T) []Record {
	records := make([]Record, len(items))
	for i, item := range items {
		records[i] = item
	}

	return records
}

// multiPublisher publishes every batch to all of its publishers.
type multiPublisher []Publisher

var _ Publisher = multiPublisher(nil)

func (m multiPublisher) Publish(ctx context.Context, batch Batch) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m multiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}

	return errors.Join(errs...)
}

// MultiPublisher returns a Publisher that forwards each batch to every
// non-nil publisher given, joining their errors. A failing sink does not
// prevent the others from receiving the batch.
func MultiPublisher(publishers ...Publisher) Publisher {
	var m multiPublisher
	for _, p := range publishers {
		if p != nil {
			m = append(m, p)
		}
	}

	return m
}
