package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima/engine/core"
)

// ErrNotRetired is returned by RetireAfter when the fence did not signal in
// time. Nothing is released in that case.
var ErrNotRetired = errors.New("command buffer has not retired")

// DisposeSubmitted defers the destruction of d until the command buffer this
// session recorded has retired.
func (s *Session) DisposeSubmitted(d Disposable) error {
	if d == nil {
		return fmt.Errorf("%w: nil disposable", core.ErrInvalidOperation)
	}
	if s.state == SessionStateDestroyed {
		return fmt.Errorf("%w: %s is destroyed", core.ErrInvalidOperation, s.Name)
	}
	s.disposables = append(s.disposables, d)
	return nil
}

// Retire hands the staging buffers used by the last recording back to the
// pool and destroys deferred resources. The caller must know the submitted
// command buffer has retired.
func (s *Session) Retire() error {
	if s.state == SessionStateRecording {
		return fmt.Errorf("%w: retire while %s is recording", core.ErrInvalidOperation, s.Name)
	}
	return s.release()
}

// Discard abandons a recording that will never be submitted. Every image it
// touched gets back the layouts it had when the recording began, then the
// session is retired.
func (s *Session) Discard() error {
	if s.state == SessionStateRecording {
		return fmt.Errorf("%w: discard while %s is recording", core.ErrInvalidOperation, s.Name)
	}
	s.batch.restore()
	core.LogDebug("%s: recording discarded", s.Name)
	return s.release()
}

// RetireAfter waits for fence and retires the session once it signaled.
func (s *Session) RetireAfter(fence Fence, timeout time.Duration) error {
	if fence == nil {
		return fmt.Errorf("%w: nil fence", core.ErrInvalidOperation)
	}
	if s.state == SessionStateRecording {
		return fmt.Errorf("%w: retire while %s is recording", core.ErrInvalidOperation, s.Name)
	}
	ok, err := fence.Wait(timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s after %v", ErrNotRetired, s.Name, timeout)
	}
	return s.release()
}

func (s *Session) release() error {
	s.batch.forget()
	var errs []error
	for _, sb := range s.usedStaging {
		if err := s.pool.Release(sb); err != nil {
			errs = append(errs, err)
		}
	}
	staged, disposed := len(s.usedStaging), len(s.disposables)
	clear(s.usedStaging)
	s.usedStaging = s.usedStaging[:0]

	for _, d := range s.disposables {
		d.Destroy()
	}
	clear(s.disposables)
	s.disposables = s.disposables[:0]

	if staged > 0 || disposed > 0 {
		core.LogDebug("%s: retired %d staging buffers, %d resources", s.Name, staged, disposed)
	}
	return errors.Join(errs...)
}

// Destroy releases everything the session still holds. A recording in
// progress is abandoned.
func (s *Session) Destroy() error {
	if s.state == SessionStateDestroyed {
		return nil
	}
	err := s.release()
	s.state = SessionStateDestroyed
	s.framebuffer = nil
	s.pipeline = nil
	s.sets = nil
	s.batch.reset()
	return err
}
