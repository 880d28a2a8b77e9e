// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/engine"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Auth() config.AuthConfig {
	args := m.Called()
	return args.Get(0).(config.AuthConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Enhance() config.EnhanceConfig {
	args := m.Called()
	return args.Get(0).(config.EnhanceConfig)
}

func (m *MockConfig) APITesting() config.APITestingConfig {
	args := m.Called()
	return args.Get(0).(config.APITestingConfig)
}

func (m *MockConfig) TestData() config.TestDataConfig {
	args := m.Called()
	return args.Get(0).(config.TestDataConfig)
}

// --- Setters ---

func (m *MockConfig) SetEngineWorkerConcurrency(w int) {
	m.Called(w)
}

func (m *MockConfig) SetEngineRunner(r string) {
	m.Called(r)
}

func (m *MockConfig) SetServerPort(p int) {
	m.Called(p)
}

// -- Execution Mocks --

// MockRunStore mocks engine.RunStore.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) MarkRunRunning(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRunStore) CompleteRun(ctx context.Context, id string, out schemas.RunOutcome) error {
	return m.Called(ctx, id, out).Error(0)
}

// MockRunner mocks engine.Runner.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, job engine.RunJob) (*schemas.RunOutcome, error) {
	args := m.Called(ctx, job)
	var out *schemas.RunOutcome
	if v := args.Get(0); v != nil {
		out = v.(*schemas.RunOutcome)
	}
	return out, args.Error(1)
}

var (
	_ config.Interface = (*MockConfig)(nil)
	_ engine.RunStore  = (*MockRunStore)(nil)
	_ engine.Runner    = (*MockRunner)(nil)
)
