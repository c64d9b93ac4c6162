package core

import "sync/atomic"

// MetricsState accumulates recording statistics across all sessions.
type MetricsState struct {
	BarrierCommands   atomic.Uint64
	ImageBarriers     atomic.Uint64
	UploadedBytes     atomic.Uint64
	StagingAllocated  atomic.Uint64
	StagingDestroyed  atomic.Uint64
	RenderPassBegins  atomic.Uint64
	ValidationsPassed atomic.Uint64
}

type MetricsSnapshot struct {
	BarrierCommands   uint64
	ImageBarriers     uint64
	UploadedBytes     uint64
	StagingAllocated  uint64
	StagingDestroyed  uint64
	RenderPassBegins  uint64
	ValidationsPassed uint64
}

var metricsState MetricsState

func MetricsRecordBarrier(imageBarriers int) {
	metricsState.BarrierCommands.Add(1)
	metricsState.ImageBarriers.Add(uint64(imageBarriers))
}

func MetricsRecordUpload(bytes uint64) {
	metricsState.UploadedBytes.Add(bytes)
}

func MetricsRecordStagingAllocated() {
	metricsState.StagingAllocated.Add(1)
}

func MetricsRecordStagingDestroyed() {
	metricsState.StagingDestroyed.Add(1)
}

func MetricsRecordRenderPass() {
	metricsState.RenderPassBegins.Add(1)
}

func MetricsRecordValidation() {
	metricsState.ValidationsPassed.Add(1)
}

func MetricsFrame() MetricsSnapshot {
	return MetricsSnapshot{
		BarrierCommands:   metricsState.BarrierCommands.Load(),
		ImageBarriers:     metricsState.ImageBarriers.Load(),
		UploadedBytes:     metricsState.UploadedBytes.Load(),
		StagingAllocated:  metricsState.StagingAllocated.Load(),
		StagingDestroyed:  metricsState.StagingDestroyed.Load(),
		RenderPassBegins:  metricsState.RenderPassBegins.Load(),
		ValidationsPassed: metricsState.ValidationsPassed.Load(),
	}
}

// MetricsReset zeroes all counters.
func MetricsReset() {
	metricsState.BarrierCommands.Store(0)
	metricsState.ImageBarriers.Store(0)
	metricsState.UploadedBytes.Store(0)
	metricsState.StagingAllocated.Store(0)
	metricsState.StagingDestroyed.Store(0)
	metricsState.RenderPassBegins.Store(0)
	metricsState.ValidationsPassed.Store(0)
}
