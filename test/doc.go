// Package test provides infrastructure and utilities for integration testing.
//
// A Suite wires the real API server, worker pool and publish pipeline to a
// file-based SQLite database, a local media stager and the mock Graph API,
// and hands out API clients acting as a given user.
//
// Example Usage:
//
//	func TestExample(t *testing.T) {
//	    suite := test.NewSuite(t)
//	    defer suite.Cleanup()
//
//	    suite.ConnectFacebook()
//	    job, err := suite.APIClient.SubmitJob(suite.Context(), req)
//	    // Use suite.MockGraph to configure the platform behavior
//	}
//
// The test package is designed to:
//  1. Enable testing of API contracts between client and server
//  2. Provide consistent mocking of the platform APIs
//  3. Reduce test setup boilerplate
package test
