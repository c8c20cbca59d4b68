// Package mocks provides in-process fakes of the platform APIs used in tests.
//
// Each fake follows these principles:
//  1. Serves the same wire format as the real API
//  2. Provides configurable behavior through function fields
//  3. Returns standard identifiers exported as constants
//
// Example usage:
//
//	graph := mocks.NewMockGraphAPI()
//	defer graph.Close()
//	graph.StatusSequence = []string{mocks.GraphStatusProgress, mocks.GraphStatusFinished}
package mocks
