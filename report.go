package handeye

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"go.viam.com/handeye/calibration"
	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/spatialmath"
	"go.viam.com/handeye/utils"
)

// Report is the outcome of a run.
type Report struct {
	ID        uuid.UUID
	StartedAt time.Time
	Outcomes  []ImageOutcome
	// ObservationImages maps each observation of the problem to the index of its image.
	ObservationImages []int
	Result            calibration.ExtrinsicHandEyeResult
	Comparisons       []calibration.ObservationComparison
	Statistics        calibration.ComparisonStatistics

	// Rejections combines the errors of every rejected image.
	Rejections error
	// Divergence is set when the solver stopped without converging.
	Divergence error

	HomographyThreshold  float64
	CorrelationThreshold float64

	ValidationDuration   time.Duration
	OptimizationDuration time.Duration
	AnalysisDuration     time.Duration
}

// Accepted returns the outcomes of the accepted images.
func (r *Report) Accepted() []ImageOutcome {
	return lo.Filter(r.Outcomes, func(o ImageOutcome, _ int) bool { return o.State == Accepted })
}

// Rejected returns the outcomes of the rejected images.
func (r *Report) Rejected() []ImageOutcome {
	return lo.Filter(r.Outcomes, func(o ImageOutcome, _ int) bool { return o.State == Rejected })
}

// Duration is the time spent in every stage.
func (r *Report) Duration() time.Duration {
	return r.ValidationDuration + r.OptimizationDuration + r.AnalysisDuration
}

// A ReportSink presents a report.
type ReportSink interface {
	Report(ctx context.Context, report *Report) error
}

// LoggerSink writes a report as structured log lines.
type LoggerSink struct {
	Logger logging.Logger
}

// Report implements ReportSink.
func (s LoggerSink) Report(ctx context.Context, report *Report) error {
	s.Logger.Infow("images",
		"run", report.ID,
		"total", len(report.Outcomes),
		"accepted", len(report.Accepted()),
		"rejected", len(report.Rejected()),
	)
	res := report.Result
	if res.CameraMountToCamera == nil {
		return nil
	}
	s.Logger.Infow("calibration",
		"run", report.ID,
		"converged", res.Converged,
		"status", res.Status,
		"iterations", res.Iterations,
		"initial_cost_per_observation", res.InitialCostPerObservation,
		"final_cost_per_observation", res.FinalCostPerObservation,
		"camera_mount_to_camera", spatialmath.PoseToVector(res.CameraMountToCamera),
		"target_mount_to_target", spatialmath.PoseToVector(res.TargetMountToTarget),
	)
	if res.Covariance != nil {
		s.Logger.Debugw("covariance", "run", report.ID, "summary", res.Covariance.Summary(report.CorrelationThreshold))
		for _, c := range res.Covariance.CorrelationsAbove(report.CorrelationThreshold) {
			s.Logger.Warnw("highly correlated parameters", "first", c.First, "second", c.Second, "correlation", c.Coefficient)
		}
	}
	st := report.Statistics
	s.Logger.Infow("comparison with pnp",
		"run", report.ID,
		"position_error_mean", st.PositionErrorMean,
		"position_error_stdev", st.PositionErrorStdev,
		"orientation_error_mean_deg", utils.RadToDeg(st.OrientationErrorMean),
		"orientation_error_stdev_deg", utils.RadToDeg(st.OrientationErrorStdev),
	)
	return nil
}

// TableSink renders a report as text tables.
type TableSink struct {
	Out io.Writer
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func (s TableSink) render(t table.Writer) error {
	_, err := fmt.Fprintln(s.Out, t.Render())
	return err
}

// ImagesTable lists the outcome of every image.
func ImagesTable(outcomes []ImageOutcome, threshold float64) table.Writer {
	t := newTable(fmt.Sprintf("Images (homography threshold %.3f px)", threshold))
	t.AppendHeader(table.Row{"#", "Name", "State", "Correspondences", "Homography error (px)", "Reason"})
	for _, o := range outcomes {
		homographyError := ""
		if o.State == Accepted || o.HomographyError > 0 {
			homographyError = fmt.Sprintf("%.4f", o.HomographyError)
		}
		reason := ""
		if o.Err != nil {
			reason = o.Err.Error()
		}
		t.AppendRow(table.Row{o.Index, o.Name, o.State, len(o.Correspondences), homographyError, reason})
	}
	return t
}

func formatTranslation(p spatialmath.Pose) string {
	pt := p.Point()
	return fmt.Sprintf("%.6f, %.6f, %.6f", pt.X, pt.Y, pt.Z)
}

func formatQuaternion(p spatialmath.Pose) string {
	q := p.Orientation().Quaternion()
	return fmt.Sprintf("w:%.6f, x:%.6f, y:%.6f, z:%.6f", q.Real, q.Imag, q.Jmag, q.Kmag)
}

func formatRotationVector(p spatialmath.Pose) string {
	v := spatialmath.PoseToVector(p)
	return fmt.Sprintf("%.6f, %.6f, %.6f", v[3], v[4], v[5])
}

// Report implements ReportSink.
func (s TableSink) Report(ctx context.Context, report *Report) error {
	if err := s.render(ImagesTable(report.Outcomes, report.HomographyThreshold)); err != nil {
		return err
	}
	res := report.Result
	if res.CameraMountToCamera == nil {
		return nil
	}

	result := newTable("Calibration")
	result.AppendHeader(table.Row{"Transform", "Translation (m)", "Quaternion", "Rotation vector (rad)"})
	for _, row := range []struct {
		name string
		pose spatialmath.Pose
	}{
		{"camera mount to camera", res.CameraMountToCamera},
		{"target mount to target", res.TargetMountToTarget},
	} {
		result.AppendRow(table.Row{row.name, formatTranslation(row.pose), formatQuaternion(row.pose), formatRotationVector(row.pose)})
	}
	result.AppendFooter(table.Row{
		"converged", res.Converged,
		fmt.Sprintf("%d iterations, %s", res.Iterations, res.Status),
		fmt.Sprintf("cost/obs %.6g -> %.6g px^2", res.InitialCostPerObservation, res.FinalCostPerObservation),
	})
	if err := s.render(result); err != nil {
		return err
	}

	if res.Covariance != nil {
		uncertainty := newTable("Parameter standard deviations")
		uncertainty.AppendHeader(table.Row{"Parameter", "Std dev"})
		for i, label := range res.Covariance.Labels {
			uncertainty.AppendRow(table.Row{label, fmt.Sprintf("%.6g", res.Covariance.StdDev(i))})
		}
		correlated := res.Covariance.CorrelationsAbove(report.CorrelationThreshold)
		if len(correlated) > 0 {
			uncertainty.AppendSeparator()
			uncertainty.AppendRow(table.Row{fmt.Sprintf("Correlations above %.2f", report.CorrelationThreshold), ""})
			for _, c := range correlated {
				uncertainty.AppendRow(table.Row{c.First + " / " + c.Second, fmt.Sprintf("%.3f", c.Coefficient)})
			}
		}
		if err := s.render(uncertainty); err != nil {
			return err
		}
	}

	if len(report.Comparisons) > 0 {
		comparisons := newTable("Comparison with PnP")
		comparisons.AppendHeader(table.Row{"Observation", "Image", "Position error (m)", "Orientation error (deg)", "Reprojection RMS (px)", "PnP converged"})
		for _, c := range report.Comparisons {
			image := ""
			if c.Index < len(report.ObservationImages) {
				image = fmt.Sprint(report.ObservationImages[c.Index])
			}
			comparisons.AppendRow(table.Row{
				c.Index, image,
				fmt.Sprintf("%.6f", c.PositionError),
				fmt.Sprintf("%.4f", utils.RadToDeg(c.OrientationError)),
				fmt.Sprintf("%.4f", c.ReprojectionRMS),
				c.PnPConverged,
			})
		}
		st := report.Statistics
		comparisons.AppendFooter(table.Row{
			"mean ± stdev", "",
			fmt.Sprintf("%.6f ± %.6f", st.PositionErrorMean, st.PositionErrorStdev),
			fmt.Sprintf("%.4f ± %.4f", utils.RadToDeg(st.OrientationErrorMean), utils.RadToDeg(st.OrientationErrorStdev)),
			"", "",
		})
		if err := s.render(comparisons); err != nil {
			return err
		}
	}

	summary := []string{fmt.Sprintf("run %s took %s", report.ID, strings.ToLower(units.HumanDuration(report.Duration())))}
	if report.Divergence != nil {
		summary = append(summary, "WARNING: "+report.Divergence.Error())
	}
	_, err := fmt.Fprintln(s.Out, strings.Join(summary, "\n"))
	return err
}
