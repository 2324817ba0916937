// Package logging provides the engine's structured logging setup: a
// logrus logger with stdout/stderr stream separation. pipelinectl
// builds it and hands entries of it to the scheduler and workflow
// executor; those packages do not import this one.
package logging

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes error-level log lines to stderr and everything
// else to stdout, so container log collectors can treat the two
// streams differently without parsing structured fields.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is a package-level logger writing through OutputSplitter.
// Components that are not handed an explicit *logrus.Entry fall back to
// logrus.StandardLogger(), not to this one.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
