package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/handeye"
	"go.viam.com/handeye/calibration"
	"go.viam.com/handeye/config"
	"go.viam.com/handeye/logging"
)

const logFileMaxSizeMB = 10

// newLogger builds the logger of a command. Logs go to the error writer of the app and to the log
// file when one is given. The returned closer must be called when the command is done.
func newLogger(c *cli.Context) (logging.Logger, io.Closer) {
	logger := logging.NewBlankLogger("handeye")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(logging.INFO)
	}
	var closer io.Closer = nopCloser{}
	if path := c.Path(flagLogFile); path != "" {
		var appender logging.ConsoleAppender
		appender, closer = logging.NewFileAppender(path, logFileMaxSizeMB)
		logger.AddAppender(appender)
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// loadConfig reads the calibration named by the flags and applies the mounting mode flags.
func loadConfig(c *cli.Context) (*config.Calibration, error) {
	conf, err := config.Read(c.Path(flagConfig))
	if err != nil {
		return nil, err
	}
	switch {
	case c.Bool(flagCameraOnWrist) && c.Bool(flagTargetOnWrist):
		return nil, errors.Errorf("--%s and --%s are mutually exclusive", flagCameraOnWrist, flagTargetOnWrist)
	case c.Bool(flagCameraOnWrist):
		conf.Mode = calibration.CameraOnWrist
	case c.Bool(flagTargetOnWrist):
		conf.Mode = calibration.TargetOnWrist
	}
	if c.Bool(flagParallel) {
		conf.Parallel = true
	}
	return conf, nil
}

func setup(c *cli.Context, logger logging.Logger) (handeye.Config, handeye.ObservationGenerator, error) {
	conf, err := loadConfig(c)
	if err != nil {
		return handeye.Config{}, nil, err
	}
	logger.Debugw("loaded calibration", "config", conf.ConfigFilePath, "mode", conf.Mode,
		"images", len(conf.Data), "target_finder", conf.TargetFinder.Type)
	return handeye.NewConfig(c.Context, conf, logger)
}

// CalibrateAction runs a full calibration and prints the report.
func CalibrateAction(c *cli.Context) error {
	logger, closer := newLogger(c)
	defer utils.UncheckedErrorFunc(closer.Close)

	cfg, generate, err := setup(c, logger)
	if err != nil {
		return err
	}
	report, err := handeye.Run(c.Context, cfg, generate, logger)
	if report != nil {
		sinks := []handeye.ReportSink{handeye.TableSink{Out: c.App.Writer}}
		if c.Bool(flagDebug) {
			sinks = append(sinks, handeye.LoggerSink{Logger: logger})
		}
		for _, sink := range sinks {
			if sinkErr := sink.Report(c.Context, report); sinkErr != nil {
				return sinkErr
			}
		}
	}
	if err != nil {
		return err
	}
	if report.Divergence != nil {
		warningf(c.App.ErrWriter, "the solver did not converge, inspect the result before using it")
	}
	return nil
}

// ValidateAction checks every image without calibrating.
func ValidateAction(c *cli.Context) error {
	logger, closer := newLogger(c)
	defer utils.UncheckedErrorFunc(closer.Close)

	cfg, _, err := setup(c, logger)
	if err != nil {
		return err
	}
	outcomes, err := handeye.ValidateImages(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", handeye.ImagesTable(outcomes, cfg.HomographyThreshold).Render())

	accepted := 0
	for _, o := range outcomes {
		if o.State == handeye.Accepted {
			accepted++
		}
	}
	if accepted == 0 {
		return errors.Wrapf(calibration.ErrNoAcceptedObservations, "all %d images were rejected", len(outcomes))
	}
	if accepted < len(outcomes) {
		warningf(c.App.Writer, "%d of %d images were rejected", len(outcomes)-accepted, len(outcomes))
	}
	successf(c.App.Writer, "%d of %d images can be used for calibration", accepted, len(outcomes))
	return nil
}

// printf prints a message with no decoration.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
