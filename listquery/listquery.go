// Package listquery holds the pagination, search and filter state shared by
// every list-style page. It is pure state: consumers fetch when notified.
package listquery

import (
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DefaultDebounce is the settle interval between raw search input and the
// query value used to build request parameters.
const DefaultDebounce = 300 * time.Millisecond

const (
	defaultPageSize = 10
	// sentinel selector value meaning "no filtering"; omitted from params.
	sentinelAll = "all"
)

// Options configure the initial state. Zero values fall back to defaults.
type Options struct {
	Page     int
	PageSize int
	Filter   string
	Type     string
	Source   string
	Debounce time.Duration
	// OnChange is invoked, without the state lock held, whenever a value
	// that affects the composed params changes. Consumers refetch here.
	OnChange func()
}

// State is the list parameter state machine. All methods are safe for
// concurrent use.
type State struct {
	mu          sync.Mutex
	page        int
	pageSize    int
	searchInput string
	searchQuery string
	filter      string
	typ         string
	source      string
	debounce    time.Duration
	timer       *time.Timer
	onChange    func()
	closed      bool
}

// New creates a State with the given options.
func New(opts Options) *State {
	s := &State{
		page:     opts.Page,
		pageSize: opts.PageSize,
		filter:   opts.Filter,
		typ:      opts.Type,
		source:   opts.Source,
		debounce: opts.Debounce,
		onChange: opts.OnChange,
	}
	if s.page < 1 {
		s.page = 1
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.filter == "" {
		s.filter = sentinelAll
	}
	if s.typ == "" {
		s.typ = sentinelAll
	}
	if s.source == "" {
		s.source = sentinelAll
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	return s
}

// Close cancels any pending debounce timer. The state must not be used after.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Page returns the current page number.
func (s *State) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// SetPage moves to the given page. Values below 1 clamp to 1.
func (s *State) SetPage(n int) {
	s.mu.Lock()
	if n < 1 {
		n = 1
	}
	changed := s.page != n
	s.page = n
	s.mu.Unlock()
	s.fire(changed)
}

// PageSize returns the current page size.
func (s *State) PageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageSize
}

// SetPageSize changes the page size and resets to the first page so the
// current page cannot fall out of range.
func (s *State) SetPageSize(n int) {
	s.mu.Lock()
	if n <= 0 {
		s.mu.Unlock()
		return
	}
	changed := s.pageSize != n
	s.pageSize = n
	if changed {
		s.page = 1
	}
	s.mu.Unlock()
	s.fire(changed)
}

// SearchInput returns the raw, undebounced input value.
func (s *State) SearchInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchInput
}

// Query returns the debounced search value, the one used for params.
func (s *State) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

// SetSearchInput records a keystroke. The raw value updates immediately; the
// query value follows after the debounce interval of inactivity. Any pending
// timer is cancelled first.
func (s *State) SetSearchInput(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.searchInput = v
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.settleSearch)
}

// Flush applies any pending search input immediately, bypassing the
// remaining debounce delay.
func (s *State) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.settleSearch()
}

func (s *State) settleSearch() {
	s.mu.Lock()
	if s.closed || s.searchQuery == s.searchInput {
		s.mu.Unlock()
		return
	}
	s.searchQuery = s.searchInput
	s.page = 1
	s.mu.Unlock()
	s.fire(true)
}

// Filter returns the primary filter selector.
func (s *State) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter changes the primary filter and resets to page 1.
func (s *State) SetFilter(v string) { s.setSelector(&s.filter, v) }

// Type returns the secondary type selector.
func (s *State) Type() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typ
}

// SetType changes the type selector and resets to page 1.
func (s *State) SetType(v string) { s.setSelector(&s.typ, v) }

// Source returns the secondary source selector.
func (s *State) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SetSource changes the source selector and resets to page 1.
func (s *State) SetSource(v string) { s.setSelector(&s.source, v) }

func (s *State) setSelector(field *string, v string) {
	s.mu.Lock()
	if v == "" {
		v = sentinelAll
	}
	changed := *field != v
	*field = v
	if changed {
		s.page = 1
	}
	s.mu.Unlock()
	s.fire(changed)
}

func (s *State) fire(changed bool) {
	if changed && s.onChange != nil {
		s.onChange()
	}
}

// Params composes the query parameters for the current state. Empty values
// and "all" sentinels are omitted so the backend only receives meaningful
// filters.
func (s *State) Params() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := url.Values{}
	q.Set("page", strconv.Itoa(s.page))
	q.Set("limit", strconv.Itoa(s.pageSize))
	if s.searchQuery != "" {
		q.Set("search", s.searchQuery)
	}
	if s.filter != "" && s.filter != sentinelAll {
		q.Set("filter", s.filter)
	}
	if s.typ != "" && s.typ != sentinelAll {
		q.Set("type", s.typ)
	}
	if s.source != "" && s.source != sentinelAll {
		q.Set("source", s.source)
	}
	return q
}
