package fs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// logger is the single package-level logrus instance backing Debugf,
// Infof and Errorf, mirroring the teacher's fs.Debugf(object, ...)
// convention of logging against "an object" rather than a bare string.
var logger = logrus.New()

// SetLogLevel adjusts the verbosity of the package logger.
func SetLogLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// stringer is satisfied by anything with a human string form: paths,
// filesystems, pool objects.
type stringer interface {
	String() string
}

func label(o interface{}) string {
	if o == nil {
		return "-"
	}
	if s, ok := o.(stringer); ok {
		return s.String()
	}
	if s, ok := o.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", o)
}

// Debugf logs a debug-level message scoped to o.
func Debugf(o interface{}, format string, args ...interface{}) {
	logger.WithField("scope", label(o)).Debugf(format, args...)
}

// Infof logs an info-level message scoped to o.
func Infof(o interface{}, format string, args ...interface{}) {
	logger.WithField("scope", label(o)).Infof(format, args...)
}

// Errorf logs an error-level message scoped to o.
func Errorf(o interface{}, format string, args ...interface{}) {
	logger.WithField("scope", label(o)).Errorf(format, args...)
}
