package service

import (
	"time"

	"judgebox/internal/judge/catalog"
)

// Observer receives judge measurements.
type Observer interface {
	ObserveCompile(language string, elapsed time.Duration, ok bool)
	ObserveRun(language string, elapsed time.Duration)
	ObserveVerdict(language string, status catalog.Status)
	ObserveRejected(reason string)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ObserveCompile(string, time.Duration, bool) {}
func (NopObserver) ObserveRun(string, time.Duration)           {}
func (NopObserver) ObserveVerdict(string, catalog.Status)      {}
func (NopObserver) ObserveRejected(string)                     {}
