package http

import "context"

// PageFetcher fetches one page of items. It returns the items and the number
// of the next page, or 0 when the listing is exhausted. This mirrors the
// X-Next-Page convention used by GitLab-style APIs.
type PageFetcher[T any] func(ctx context.Context, page int) (items []T, next int, err error)

// PageIterator walks a paginated listing lazily, one page at a time,
// preserving the server's order within and across pages.
type PageIterator[T any] struct {
	fetch   PageFetcher[T]
	page    int
	buffer  []T
	done    bool
	err     error
	pages   int
	fetched int
}

// NewPageIterator creates an iterator that starts at page 1.
func NewPageIterator[T any](fetch PageFetcher[T]) *PageIterator[T] {
	return &PageIterator[T]{
		fetch: fetch,
		page:  1,
	}
}

// Next returns the next item, true if an item was returned, and any error.
// When iteration is complete it returns (zero, false, nil).
func (p *PageIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	if p.err != nil {
		return zero, false, p.err
	}

	// Empty pages in the middle of a listing are skipped, not treated as the end.
	for len(p.buffer) == 0 && !p.done {
		items, next, err := p.fetch(ctx, p.page)
		if err != nil {
			p.err = err
			return zero, false, err
		}
		p.pages++
		p.buffer = items

		// A next page that does not advance would loop forever
		if next <= p.page {
			p.done = true
		} else {
			p.page = next
		}
	}

	if len(p.buffer) == 0 {
		return zero, false, nil
	}

	item := p.buffer[0]
	p.buffer = p.buffer[1:]
	p.fetched++

	return item, true, nil
}

// All collects every remaining item into a slice.
func (p *PageIterator[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	for {
		item, ok, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		all = append(all, item)
	}
	return all, nil
}

// Err returns any error that occurred during iteration.
func (p *PageIterator[T]) Err() error {
	return p.err
}

// Pages returns the number of pages fetched so far.
func (p *PageIterator[T]) Pages() int {
	return p.pages
}

// Fetched returns the number of items returned so far.
func (p *PageIterator[T]) Fetched() int {
	return p.fetched
}
