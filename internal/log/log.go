// Package log builds the proxy's structured logger: logrus configured with
// an optional syslog hook, mirroring the teacher's dual stdout/syslog
// output without the teacher's hand-rolled priority switch.
package log

import (
	"log/syslog"
	"os"

	"github.com/sirupsen/logrus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
)

// New builds a *logrus.Logger writing JSON lines to stderr. If network and
// addr are both non-empty, a syslog hook is attached as well, the way the
// teacher always ships syslog output alongside stdout.
func New(verbose bool, network, addr string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}

	if network != "" && addr != "" {
		hook, err := logrus_syslog.NewSyslogHook(network, addr, syslog.LOG_INFO, "ocsp_proxy")
		if err != nil {
			return nil, err
		}
		l.AddHook(hook)
	}

	return l, nil
}
