package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tablerag/internal/domain"
)

type availability int

const (
	stateUnknown availability = iota
	stateAvailable
	stateUnavailable
)

// Manager selects among chat providers with sticky failover: the provider
// that most recently succeeded is tried first, a failing provider is marked
// unavailable until the next Refresh, and Chat never returns a Go error.
type Manager struct {
	mu        sync.Mutex
	providers []ChatProvider // preference order
	state     map[string]availability
	lastErr   map[string]string
	active    string
	log       *logrus.Logger
}

// NewManager probes every provider once and selects the first available one
// in preference order as active. Construction fails hard when none are
// available: running without any LLM is a configuration error, not a
// degrade-and-continue case.
func NewManager(providers []ChatProvider, log *logrus.Logger) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("no chat providers configured")
	}
	if log == nil {
		log = logrus.New()
	}
	m := &Manager{
		providers: providers,
		state:     make(map[string]availability, len(providers)),
		lastErr:   make(map[string]string, len(providers)),
		log:       log,
	}
	m.Refresh()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return nil, fmt.Errorf("no chat provider available: %s", m.availabilityReportLocked())
	}
	m.log.WithField("provider", m.active).Info("chat provider selected")
	return m, nil
}

// Refresh re-probes every provider and re-selects the active one in
// preference order. This is the only transition from Unavailable back to
// Available.
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = ""
	for _, p := range m.providers {
		if err := p.Available(); err != nil {
			m.state[p.Name()] = stateUnavailable
			m.lastErr[p.Name()] = err.Error()
			continue
		}
		m.state[p.Name()] = stateAvailable
		delete(m.lastErr, p.Name())
		if m.active == "" {
			m.active = p.Name()
		}
	}
}

// Active returns the name of the currently preferred provider.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Chat tries the active provider first and falls through the remaining
// available providers in preference order.
func (m *Manager) Chat(ctx context.Context, req *domain.LLMRequest) *domain.LLMResponse {
	return m.ChatWith(ctx, req, "")
}

// ChatWith is Chat with an optional forced provider. With a forced provider
// no failover happens. On success the succeeding provider becomes active;
// on failure the provider is marked unavailable and the next one is tried.
// When every provider fails, a synthetic failed response carries the last
// error.
func (m *Manager) ChatWith(ctx context.Context, req *domain.LLMRequest, force string) *domain.LLMResponse {
	start := time.Now()
	order := m.tryOrder(force)
	if len(order) == 0 {
		return &domain.LLMResponse{
			Success:        false,
			Error:          fmt.Sprintf("no usable chat provider: %s", m.availabilityReport()),
			ProcessingTime: time.Since(start),
		}
	}
	lastErr := ""
	for _, p := range order {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			lastErr = fmt.Sprintf("%s: %s", p.Name(), err.Error())
			m.markUnavailable(p.Name(), err)
			m.log.WithError(err).WithField("provider", p.Name()).Warn("chat call failed, trying next provider")
			continue
		}
		m.promote(p.Name())
		return resp
	}
	return &domain.LLMResponse{
		Success:        false,
		Error:          lastErr,
		ProcessingTime: time.Since(start),
	}
}

func (m *Manager) tryOrder(force string) []ChatProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if force != "" {
		for _, p := range m.providers {
			if p.Name() == force {
				return []ChatProvider{p}
			}
		}
		return nil
	}
	var order []ChatProvider
	for _, p := range m.providers {
		if p.Name() == m.active {
			order = append([]ChatProvider{p}, order...)
			continue
		}
		if m.state[p.Name()] == stateAvailable {
			order = append(order, p)
		}
	}
	return order
}

func (m *Manager) markUnavailable(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[name] = stateUnavailable
	m.lastErr[name] = err.Error()
	if m.active == name {
		m.active = ""
		for _, p := range m.providers {
			if m.state[p.Name()] == stateAvailable {
				m.active = p.Name()
				break
			}
		}
	}
}

func (m *Manager) promote(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[name] = stateAvailable
	delete(m.lastErr, name)
	m.active = name
}

func (m *Manager) availabilityReport() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availabilityReportLocked()
}

func (m *Manager) availabilityReportLocked() string {
	report := ""
	for _, p := range m.providers {
		if report != "" {
			report += "; "
		}
		switch m.state[p.Name()] {
		case stateAvailable:
			report += p.Name() + "=available"
		case stateUnavailable:
			report += fmt.Sprintf("%s=unavailable (%s)", p.Name(), m.lastErr[p.Name()])
		default:
			report += p.Name() + "=unknown"
		}
	}
	return report
}
