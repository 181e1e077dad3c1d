package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	// contract violations, raised as panics by the frame graph
	ErrInvalidPhase      = errors.New("invalid phase")
	ErrMissingDependency = errors.New("missing dependency")
	ErrWrongThread       = errors.New("render slot accessed outside the render actor")
	ErrStaleHandle       = errors.New("stale resource handle")

	ErrUnknownResource     = errors.New("unknown resource")
	ErrNotFound            = errors.New("not found")
	ErrNotMaterialized     = errors.New("resource not materialized")
	ErrDescriptionConflict = errors.New("conflicting resource description")
	ErrInvalidDescription  = errors.New("invalid resource description")
	ErrQueueFull           = errors.New("queue is full")
	ErrQueueEmpty          = errors.New("queue is empty")
	ErrInvalidConfig       = errors.New("invalid configuration")
)
