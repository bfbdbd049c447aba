package datastore

import (
	"errors"
	"testing"
)

// --------------------------------------------------------------------------
// Stub backends
// --------------------------------------------------------------------------

// stubSync is a canned-answer Store implementation.
type stubSync struct {
	rec         Record
	found       bool
	accepted    bool
	initialized bool
	err         error

	lastInit DataSet
	closed   bool
}

func (s *stubSync) Init(data DataSet) error {
	s.lastInit = data
	return s.err
}

func (s *stubSync) Get(kind Kind, key string) (Record, bool, error) {
	return s.rec, s.found, s.err
}

func (s *stubSync) GetAll(kind Kind) (map[string]Record, error) {
	return map[string]Record{s.rec.Key: s.rec}, s.err
}

func (s *stubSync) Upsert(kind Kind, key string, candidate Record) (bool, error) {
	return s.accepted, s.err
}

func (s *stubSync) IsInitialized() (bool, error) {
	return s.initialized, s.err
}

func (s *stubSync) Close() error {
	s.closed = true
	return nil
}

// stubHooked additionally supports the pre-commit hook.
type stubHooked struct {
	stubSync
	hook func()
}

func (s *stubHooked) SetPreCommitHook(fn func()) {
	s.hook = fn
}

// stubAsync is a canned-answer AsyncStore implementation.
type stubAsync struct {
	rec         Record
	found       bool
	accepted    bool
	initialized bool
	err         error

	lastInit DataSet
	closed   bool
}

func (s *stubAsync) InitAsync(data DataSet) <-chan error {
	s.lastInit = data
	ch := make(chan error, 1)
	ch <- s.err
	return ch
}

func (s *stubAsync) GetAsync(kind Kind, key string) <-chan GetResult {
	ch := make(chan GetResult, 1)
	ch <- GetResult{Record: s.rec, Found: s.found, Err: s.err}
	return ch
}

func (s *stubAsync) GetAllAsync(kind Kind) <-chan GetAllResult {
	ch := make(chan GetAllResult, 1)
	ch <- GetAllResult{Records: map[string]Record{s.rec.Key: s.rec}, Err: s.err}
	return ch
}

func (s *stubAsync) UpsertAsync(kind Kind, key string, candidate Record) <-chan UpsertResult {
	ch := make(chan UpsertResult, 1)
	ch <- UpsertResult{Accepted: s.accepted, Err: s.err}
	return ch
}

func (s *stubAsync) IsInitializedAsync() <-chan InitializedResult {
	ch := make(chan InitializedResult, 1)
	ch <- InitializedResult{Initialized: s.initialized, Err: s.err}
	return ch
}

func (s *stubAsync) Close() error {
	s.closed = true
	return nil
}

// dropAsync closes every result channel without delivering.
type dropAsync struct{}

func closedChan[T any]() <-chan T {
	ch := make(chan T)
	close(ch)
	return ch
}

func (dropAsync) InitAsync(DataSet) <-chan error                  { return closedChan[error]() }
func (dropAsync) GetAsync(Kind, string) <-chan GetResult          { return closedChan[GetResult]() }
func (dropAsync) GetAllAsync(Kind) <-chan GetAllResult            { return closedChan[GetAllResult]() }
func (dropAsync) UpsertAsync(Kind, string, Record) <-chan UpsertResult {
	return closedChan[UpsertResult]()
}
func (dropAsync) IsInitializedAsync() <-chan InitializedResult {
	return closedChan[InitializedResult]()
}
func (dropAsync) Close() error { return nil }

// dualStore satisfies both conventions; the suspending side must never be
// reached once wrapped.
type dualStore struct {
	stubSync
}

func (d *dualStore) InitAsync(DataSet) <-chan error { panic("suspending path used") }
func (d *dualStore) GetAsync(Kind, string) <-chan GetResult {
	panic("suspending path used")
}
func (d *dualStore) GetAllAsync(Kind) <-chan GetAllResult { panic("suspending path used") }
func (d *dualStore) UpsertAsync(Kind, string, Record) <-chan UpsertResult {
	panic("suspending path used")
}
func (d *dualStore) IsInitializedAsync() <-chan InitializedResult { panic("suspending path used") }

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestNewAdapterRejectsUnknownType(t *testing.T) {
	if _, err := NewAdapter(42); err == nil {
		t.Errorf("Expected an error for a value satisfying neither convention")
	}
	if _, err := NewAdapter(nil); err == nil {
		t.Errorf("Expected an error for a nil backend")
	}
}

func TestAdapterBlockingPassthrough(t *testing.T) {
	backend := &stubSync{
		rec:         NewRecord("flag-a", 5, []byte("v5")),
		found:       true,
		accepted:    true,
		initialized: true,
	}

	a, err := NewAdapter(backend)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data := NewDataSet().Add(KindFeatures).Build()
	if err := a.Init(data); err != nil {
		t.Errorf("Unexpected Init error: %v", err)
	}
	if backend.lastInit == nil {
		t.Errorf("Expected Init to reach the backend")
	}

	rec, found, err := a.Get(KindFeatures, "flag-a")
	if err != nil || !found {
		t.Fatalf("Unexpected Get result: found=%v err=%v", found, err)
	}
	if !rec.Equal(backend.rec) {
		t.Errorf("Expected the backend record, got %+v", rec)
	}

	recs, err := a.GetAll(KindFeatures)
	if err != nil || len(recs) != 1 {
		t.Errorf("Unexpected GetAll result: %v %v", recs, err)
	}

	accepted, err := a.Upsert(KindFeatures, "flag-a", backend.rec.NextVersion())
	if err != nil || !accepted {
		t.Errorf("Unexpected Upsert result: accepted=%v err=%v", accepted, err)
	}

	initialized, err := a.IsInitialized()
	if err != nil || !initialized {
		t.Errorf("Unexpected IsInitialized result: %v %v", initialized, err)
	}

	if err := a.Close(); err != nil {
		t.Errorf("Unexpected Close error: %v", err)
	}
	if !backend.closed {
		t.Errorf("Expected Close to reach the backend")
	}
}

func TestAdapterSuspendingBridging(t *testing.T) {
	backend := &stubAsync{
		rec:         NewRecord("flag-a", 5, []byte("v5")),
		found:       true,
		accepted:    true,
		initialized: true,
	}

	a, err := NewAdapter(backend)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := a.Init(NewDataSet().Build()); err != nil {
		t.Errorf("Unexpected Init error: %v", err)
	}
	if backend.lastInit == nil {
		t.Errorf("Expected Init to reach the backend")
	}

	rec, found, err := a.Get(KindFeatures, "flag-a")
	if err != nil || !found || !rec.Equal(backend.rec) {
		t.Errorf("Unexpected Get result: %+v found=%v err=%v", rec, found, err)
	}

	recs, err := a.GetAll(KindFeatures)
	if err != nil || len(recs) != 1 {
		t.Errorf("Unexpected GetAll result: %v %v", recs, err)
	}

	accepted, err := a.Upsert(KindFeatures, "flag-a", backend.rec.NextVersion())
	if err != nil || !accepted {
		t.Errorf("Unexpected Upsert result: accepted=%v err=%v", accepted, err)
	}

	initialized, err := a.IsInitialized()
	if err != nil || !initialized {
		t.Errorf("Unexpected IsInitialized result: %v %v", initialized, err)
	}

	if err := a.Close(); err != nil {
		t.Errorf("Unexpected Close error: %v", err)
	}
	if !backend.closed {
		t.Errorf("Expected Close to reach the backend")
	}
}

func TestAdapterSuspendingErrorPassthrough(t *testing.T) {
	backendErr := errors.New("backend unavailable")
	a, err := NewAdapter(&stubAsync{err: backendErr})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, _, err := a.Get(KindFeatures, "flag-a"); !errors.Is(err, backendErr) {
		t.Errorf("Expected the backend error to pass through, got %v", err)
	}
	if err := a.Init(NewDataSet().Build()); !errors.Is(err, backendErr) {
		t.Errorf("Expected the backend error to pass through, got %v", err)
	}
}

func TestAdapterDroppedResult(t *testing.T) {
	a, err := NewAdapter(dropAsync{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, _, err := a.Get(KindFeatures, "flag-a"); !errors.Is(err, errResultClosed) {
		t.Errorf("Expected a dropped result to surface as an error, got %v", err)
	}
	if _, err := a.Upsert(KindFeatures, "flag-a", NewRecord("flag-a", 1, nil)); !errors.Is(err, errResultClosed) {
		t.Errorf("Expected a dropped result to surface as an error, got %v", err)
	}
}

func TestAdapterPrefersBlockingSurface(t *testing.T) {
	backend := &dualStore{stubSync{found: true, rec: NewRecord("flag-a", 1, []byte("v"))}}

	a, err := NewAdapter(backend)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// would panic if the suspending path were chosen
	if _, found, err := a.Get(KindFeatures, "flag-a"); err != nil || !found {
		t.Errorf("Unexpected Get result: found=%v err=%v", found, err)
	}
}

func TestAdapterHookInstallation(t *testing.T) {
	hooked := &stubHooked{}
	a, err := NewAdapter(hooked)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	fired := false
	if !a.SetPreCommitHook(func() { fired = true }) {
		t.Fatalf("Expected the hook to be installed on a PreCommitHooker backend")
	}
	if hooked.hook == nil {
		t.Fatalf("Expected the hook to reach the backend")
	}
	hooked.hook()
	if !fired {
		t.Errorf("Expected the installed hook to fire")
	}

	if !a.SetPreCommitHook(nil) {
		t.Fatalf("Expected clearing the hook to be supported")
	}
	if hooked.hook != nil {
		t.Errorf("Expected nil to clear the hook on the backend")
	}

	plain, err := NewAdapter(&stubSync{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plain.SetPreCommitHook(func() {}) {
		t.Errorf("Expected hook installation to be refused without backend support")
	}
}
