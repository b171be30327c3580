// Package internal contains private implementation details of the module.
//
//   - pipeline: the upload worker and its session state machine
//   - telemetry: spans and counters recorded by the pipeline and writer
//   - validation: bucket name, object key and metadata checks
//   - s3api: the subset of the S3 client the s3 store calls
//   - testutil: mocks and test containers
//   - cli: the s3pipe command
package internal
