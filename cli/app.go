// Package cli contains the handeye command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	// register the built in target finders.
	_ "go.viam.com/handeye/target/register"
)

// CLI flags.
const (
	flagConfig        = "config"
	flagCameraOnWrist = "camera-on-wrist"
	flagTargetOnWrist = "target-on-wrist"
	flagDebug         = "debug"
	flagLogFile       = "log-file"
	flagParallel      = "parallel"
)

var commonFlags = []cli.Flag{
	&cli.PathFlag{
		Name:      flagConfig,
		Aliases:   []string{"c"},
		Required:  true,
		TakesFile: true,
		Usage:     "load the calibration from `FILE` (json or yaml)",
	},
	&cli.BoolFlag{
		Name:  flagCameraOnWrist,
		Usage: "the robot carries the camera and the target is static",
	},
	&cli.BoolFlag{
		Name:  flagTargetOnWrist,
		Usage: "the robot carries the target and the camera is static",
	},
	&cli.BoolFlag{
		Name:  flagParallel,
		Usage: "validate images concurrently",
	},
}

var app = &cli.App{
	Name:            "handeye",
	Usage:           "calibrate the extrinsics of robot mounted cameras and targets",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.PathFlag{
			Name:      flagLogFile,
			TakesFile: true,
			Usage:     "also write logs to `FILE`, rotated every 10MB",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "calibrate",
			Usage:     "solve for the camera and target mounting transforms",
			UsageText: "handeye calibrate --config <file> [--camera-on-wrist|--target-on-wrist]",
			Flags:     commonFlags,
			Action:    CalibrateAction,
		},
		{
			Name:      "validate",
			Usage:     "find the target in every image and check it with a homography, without calibrating",
			UsageText: "handeye validate --config <file>",
			Flags:     commonFlags,
			Action:    ValidateAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
