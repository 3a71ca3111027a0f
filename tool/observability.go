package tool

import (
	"sync"
)

// ToolInvokeObservation captures one tool run outcome.
type ToolInvokeObservation struct {
	ToolName   string
	Package    string
	DurationMS int64
	ExitCode   int
	DryRun     bool
	Success    bool
	ErrorCode  string
}

// ToolInstallObservation captures one install task outcome.
type ToolInstallObservation struct {
	ToolName   string
	Package    string
	Source     string
	Attempts   int
	Bytes      int64
	DurationMS int64
	Skipped    bool
	Success    bool
	ErrorCode  string
}

// ToolRetryObservation captures one retried download attempt.
type ToolRetryObservation struct {
	ToolName  string
	Source    string
	Attempt   int
	ErrorCode string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveInvoke(observation ToolInvokeObservation)
	ObserveInstall(observation ToolInstallObservation)
	ObserveRetry(observation ToolRetryObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(ToolInvokeObservation)   {}
func (noopObserver) ObserveInstall(ToolInstallObservation) {}
func (noopObserver) ObserveRetry(ToolRetryObservation)     {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide tool observability observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return activeObserver
}

func emitInvokeObservation(observation ToolInvokeObservation) {
	currentObserver().ObserveInvoke(observation)
}

func emitInstallObservation(observation ToolInstallObservation) {
	currentObserver().ObserveInstall(observation)
}

func emitRetryObservation(observation ToolRetryObservation) {
	currentObserver().ObserveRetry(observation)
}
