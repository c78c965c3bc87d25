package task

// SortOrder defines how results should be ordered when listing tasks.
type SortOrder int

const (
	// SortByCreatedAsc orders tasks by CreatedAt ascending (oldest first).
	SortByCreatedAsc SortOrder = iota
	// SortByPriority orders tasks by priority descending, then CreatedAt ascending.
	SortByPriority
)

// ListOptions controls how tasks are selected when listing the registry.
type ListOptions struct {
	Limit    int
	Statuses []Status
	Order    SortOrder
}

// applyDefaults sanitizes the options. A zero limit means no limit.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	if opts.Order != SortByPriority {
		opts.Order = SortByCreatedAsc
	}
}

func (opts ListOptions) matches(status Status) bool {
	if len(opts.Statuses) == 0 {
		return true
	}
	for _, s := range opts.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of tasks returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithStatuses filters tasks by the provided statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithSortOrder changes the returned order of tasks.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
