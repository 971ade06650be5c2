package httpapi

import (
	"context"
	"sync"

	"inferd/internal/config"
	"inferd/pkg/types"
)

// fakeService is an in-memory Service for handler tests.
type fakeService struct {
	mu         sync.Mutex
	models     []config.ModelSpec
	endpoint   string
	acquireErr error
	acquires   int
	releases   int
	reports    int
	resets     []string
	resetErr   error
	status     types.StatusResponse
	notReady   bool
}

func (s *fakeService) Models() []config.ModelSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]config.ModelSpec(nil), s.models...)
}

func (s *fakeService) Acquire(ctx context.Context, model string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return "", s.acquireErr
	}
	s.acquires++
	return s.endpoint, nil
}

func (s *fakeService) Release(model string) {
	s.mu.Lock()
	s.releases++
	s.mu.Unlock()
}

func (s *fakeService) ReportBackendError(model string) {
	s.mu.Lock()
	s.reports++
	s.mu.Unlock()
}

func (s *fakeService) Status() types.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeService) Reset(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetErr != nil {
		return s.resetErr
	}
	s.resets = append(s.resets, model)
	return nil
}

func (s *fakeService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.notReady
}

func (s *fakeService) counts() (acquires, releases, reports int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires, s.releases, s.reports
}
