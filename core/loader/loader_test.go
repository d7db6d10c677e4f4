package loader

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockFeature struct {
	mock.Mock
}

func (m *mockFeature) Name() string {
	return m.Called().String(0)
}

func (m *mockFeature) IsEnabled() bool {
	return m.Called().Bool(0)
}

func (m *mockFeature) Load(app fiber.Router) error {
	return m.Called(app).Error(0)
}

func TestManager_LoadAll(t *testing.T) {
	app := fiber.New()

	enabled := new(mockFeature)
	enabled.On("Name").Return("receipts")
	enabled.On("IsEnabled").Return(true)
	enabled.On("Load", app).Return(nil)

	disabled := new(mockFeature)
	disabled.On("Name").Return("integrity")
	disabled.On("IsEnabled").Return(false)

	m := NewManager(nil)
	m.Register(enabled)
	m.Register(disabled)

	assert.NoError(t, m.LoadAll(app))
	assert.Len(t, m.Features(), 2)
	enabled.AssertExpectations(t)
	disabled.AssertNotCalled(t, "Load", mock.Anything)
}

func TestManager_LoadAllFails(t *testing.T) {
	app := fiber.New()

	broken := new(mockFeature)
	broken.On("Name").Return("receipts")
	broken.On("IsEnabled").Return(true)
	broken.On("Load", app).Return(errors.New("boom"))

	m := NewManager(nil)
	m.Register(broken)

	err := m.LoadAll(app)
	assert.ErrorContains(t, err, "load feature receipts: boom")
}
