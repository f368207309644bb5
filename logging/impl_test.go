package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type pixelError struct {
	Image int
	Error float64
	scale float64
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	// Log level.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	// Log message.
	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])

	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	if len(actualParts) == 4 {
		return
	}

	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[4]), &expectedMap), test.ShouldBeNil)
	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[4]), &actualMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(DEBUG), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:67	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:45:20.764Z	INFO	logging/impl_test.go:131	impl infof log`)

	logger.Warnw("image rejected", "image", 3, "homography_error", 2.5)
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806Z	WARN	logging/impl_test.go:132	image rejected	{"image":3,"homography_error":2.5}`)

	// only exported struct fields are serialized
	logger.Debugw("struct", "value", pixelError{Image: 1, Error: 0.5, scale: 2})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	DEBUG	logging/impl_test.go:121	struct	{"value":{"Image":1,"Error":0.5}}`)

	logger.Infow("unpaired", "lonely")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	INFO	logging/impl_test.go:121	unpaired	{"lonely":"unpaired log key"}`)
}

func TestLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(WARN), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("dropped")
	logger.Debugf("dropped %d", 1)
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.CDebug(EnableDebugMode(context.Background(), ""), "kept")
	assertLogMatches(t, notStdout, `2023-10-30T09:12:09.459Z	DEBUG	logging/impl_test.go:67	kept`)

	logger.SetLevel(INFO)
	test.That(t, logger.Level(), test.ShouldEqual, zapcore.InfoLevel)
	logger.Info("kept")
	assertLogMatches(t, notStdout, `2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:67	kept`)

	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSublogger(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"handeye", NewAtomicLevelAt(INFO), true, []Appender{NewWriterAppender(notStdout)}}
	sub := logger.Sublogger("solver")
	sub.Info("iteration")

	parts := strings.Split(strings.TrimSuffix(notStdout.String(), "\n"), "\t")
	test.That(t, parts[2], test.ShouldEqual, "handeye.solver")
	test.That(t, parts[4], test.ShouldEqual, "iteration")
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Warnw("image rejected", "image", 2)
	test.That(t, logs.FilterMessage("image rejected").Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].ContextMap()["image"], test.ShouldEqual, int64(2))
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handeye.log")
	appender, closer := NewFileAppender(path, 1)
	logger := NewBlankLogger("file")
	logger.AddAppender(appender)
	logger.Infow("calibrated", "observations", 12)
	test.That(t, closer.Close(), test.ShouldBeNil)

	//nolint:gosec
	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "calibrated")
	test.That(t, string(contents), test.ShouldContainSubstring, `"observations":12`)
}
