// Package logflags holds the per-layer logging switches set from the
// command line.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	locator  = false
	loader   = false
	resolver = false
	binder   = false
)

var logOut io.WriteCloser

var textFormatterInstance = &logrus.TextFormatter{
	FullTimestamp:   true,
	TimestampFormat: "2006-01-02T15:04:05Z07:00",
}

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	} else {
		logger.Logger.Out = colorable.NewColorableStderr()
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

// makeFlaggableLogger returns a logger that emits debug messages when flag
// is set and only errors otherwise.
func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Locator returns true if the root structure scan should be logged.
func Locator() bool {
	return locator
}

// LocatorLogger returns a logger for the root structure locator.
func LocatorLogger() Logger {
	return makeFlaggableLogger(locator, Fields{"layer": "locator"})
}

// Loader returns true if metadata and registration table loading should be
// logged.
func Loader() bool {
	return loader
}

// LoaderLogger returns a logger for the table loaders.
func LoaderLogger() Logger {
	return makeFlaggableLogger(loader, Fields{"layer": "loader"})
}

// Resolver returns true if type reference resolution should be logged.
func Resolver() bool {
	return resolver
}

// ResolverLogger returns a logger for the type graph.
func ResolverLogger() Logger {
	return makeFlaggableLogger(resolver, Fields{"layer": "resolver"})
}

// Binder returns true if method address binding should be logged.
func Binder() bool {
	return binder
}

// BinderLogger returns a logger for the method address binder.
func BinderLogger() Logger {
	return makeFlaggableLogger(binder, Fields{"layer": "binder"})
}

// WriteError writes an error message to the log destination, or to stderr
// if none was configured.
func WriteError(msg string) {
	if logOut != nil {
		fmt.Fprintln(logOut, msg)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the layer flags based on the contents of logstr.
// If logDest is not empty logs are redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "aotgraph-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	textFormatterInstance.DisableColors = !terminalOutput()
	if logstr == "" {
		logstr = "locator,loader"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "locator":
			locator = true
		case "loader":
			loader = true
		case "resolver":
			resolver = true
		case "binder":
			binder = true
		default:
			return fmt.Errorf("unknown log layer %q", logcmd)
		}
	}
	return nil
}

func terminalOutput() bool {
	if f, ok := logOut.(*os.File); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return logOut == nil && isatty.IsTerminal(os.Stderr.Fd())
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
