package tool

import (
	"sync"
)

type recordingObserver struct {
	mu       sync.Mutex
	invokes  []ToolInvokeObservation
	installs []ToolInstallObservation
	retryObs []ToolRetryObservation
}

func (r *recordingObserver) ObserveInvoke(o ToolInvokeObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokes = append(r.invokes, o)
}

func (r *recordingObserver) ObserveInstall(o ToolInstallObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installs = append(r.installs, o)
}

func (r *recordingObserver) ObserveRetry(o ToolRetryObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryObs = append(r.retryObs, o)
}

func (r *recordingObserver) invocations() []ToolInvokeObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToolInvokeObservation(nil), r.invokes...)
}

func (r *recordingObserver) installations() []ToolInstallObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToolInstallObservation(nil), r.installs...)
}

func (r *recordingObserver) retries() []ToolRetryObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToolRetryObservation(nil), r.retryObs...)
}
