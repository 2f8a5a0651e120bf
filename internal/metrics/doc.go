// Package metrics provides run and compiler-task metrics.
//
// Components receive a Recorder and default to NoopRecorder, so metrics cost
// nothing unless enabled. With --metrics-file the CLI installs a
// PrometheusRecorder and writes the gathered registry to a textfile once the
// run finishes.
package metrics
