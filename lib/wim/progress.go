// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

// ProgressEvent identifies what a progress callback is reporting.
type ProgressEvent int

const (
	// EventWriteStreams reports stream data being written.
	EventWriteStreams ProgressEvent = iota

	// EventWriteMetadata reports image metadata being written.
	EventWriteMetadata

	// EventCalcIntegrity reports integrity table computation.
	EventCalcIntegrity

	// EventDoneWithFile reports that a stream's source bytes have
	// been fully consumed; emitted only under the
	// send-done-with-file-messages write flag.
	EventDoneWithFile
)

// ProgressInfo is a snapshot passed to the progress callback.
type ProgressInfo struct {
	Event ProgressEvent

	// CompletedBytes and TotalBytes track uncompressed stream bytes
	// for EventWriteStreams, and resource-area bytes for
	// EventCalcIntegrity.
	CompletedBytes uint64
	TotalBytes     uint64

	// CompletedStreams and TotalStreams track stream counts.
	CompletedStreams int
	TotalStreams     int
}

// ProgressFunc observes a long-running operation. Returning a
// non-nil error aborts it: the pipeline drains its workers, the
// output file is closed, and for in-place overwrite the header is
// not rewritten, leaving the old WIM valid.
type ProgressFunc func(ProgressInfo) error

// reportProgress invokes the callback if one is registered.
func (w *WIM) reportProgress(info ProgressInfo) error {
	if w.progress == nil {
		return nil
	}
	return w.progress(info)
}
