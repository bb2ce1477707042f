package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"genclient/internal/domain"
	"genclient/internal/lifecycle"
	"genclient/internal/pricing"
	"genclient/internal/upload"
	"genclient/internal/workflow"
)

type paramFlags struct {
	mode     string
	tier     string
	quality  string
	count    int
	duration float64
	prompt   string
	label    string
}

func (f *paramFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", string(domain.ModeMultiAngle), "Generation mode: motion_control, multi_angle or logo")
	cmd.Flags().StringVar(&f.tier, "tier", "", "Resolution or quality tier (default depends on mode)")
	cmd.Flags().StringVar(&f.quality, "quality", string(domain.QualityBalanced), "Quality mode: fast, balanced or max")
	cmd.Flags().IntVar(&f.count, "count", 1, "Number of outputs (angles or logo variations)")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "Prompt text")
	cmd.Flags().StringVar(&f.label, "label", "", "Label used to name downloaded files")
}

func (f *paramFlags) params() domain.GenerationParams {
	p := domain.GenerationParams{
		Mode:            domain.GenerationMode(f.mode),
		Tier:            domain.Tier(f.tier),
		Quality:         domain.QualityMode(f.quality),
		ItemCount:       f.count,
		DurationSeconds: f.duration,
		Prompt:          strings.TrimSpace(f.prompt),
		Label:           strings.TrimSpace(f.label),
	}
	if p.Tier == "" {
		if p.Mode == domain.ModeMotionControl {
			p.Tier = domain.Tier720p
		} else {
			p.Tier = domain.TierStandard
		}
	}
	return p
}

func (a *app) creditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Print the current credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.balance.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Credits: %d\n", snap.Credits)
			return nil
		},
	}
}

func (a *app) estimateCmd() *cobra.Command {
	var (
		flags paramFlags
		video string
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a generation request against the current balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := flags.params()
			if video != "" {
				asset, err := a.uploads.Inspect(cmd.Context(), video, upload.VideoSlot(workflow.SlotReferenceVideo, a.cfg.VideoMaxMB))
				if err != nil {
					return err
				}
				params.DurationSeconds = asset.Duration
				if asset.Clamped {
					fmt.Fprintf(a.out, "Reference video is longer than %.0fs; only the first %.0fs will be used.\n", domain.MaxVideoSeconds, asset.Duration)
				}
			}
			snap, err := a.balance.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			quote, err := pricing.NewQuote(params, snap.Credits)
			if err != nil {
				return err
			}
			printQuote(a, quote)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().Float64Var(&flags.duration, "duration", 0, "Reference video length in seconds (motion_control)")
	cmd.Flags().StringVar(&video, "video", "", "Reference video to read the duration from (motion_control)")
	return cmd
}

func printQuote(a *app, q pricing.Quote) {
	fmt.Fprintf(a.out, "Estimated cost: %d credits (balance %d)\n", q.Estimate, q.Balance)
	if !q.Sufficient {
		fmt.Fprintf(a.out, "Short by %d credits.\n", q.Shortfall)
	}
}

func (a *app) generateCmd() *cobra.Command {
	var (
		flags      paramFlags
		imagePath  string
		videoPath  string
		noDownload bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Upload inputs, submit a job and wait for its archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := workflow.Inputs{Params: flags.params(), ImagePath: imagePath, VideoPath: videoPath}
			out, err := a.runnerFor(noDownload).Run(cmd.Context(), in, a.hooks())
			if err != nil {
				return err
			}
			return a.report(out)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&imagePath, "image", "", "Source, character or brand reference image")
	cmd.Flags().StringVar(&videoPath, "video", "", "Reference video (motion_control)")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Stop once the job is terminal without packaging outputs")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			snap, err := a.client.GetJobStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			printSnapshot(a, *snap, true)
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var noDownload bool
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it is terminal and download its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			out, err := a.runnerFor(noDownload).Follow(cmd.Context(), id, a.hooks())
			if err != nil {
				return err
			}
			return a.report(out)
		},
	}
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Stop once the job is terminal without packaging outputs")
	return cmd
}

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <job-id>",
		Short: "Ask the backend to reconcile a processing job with its provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			// Surface unknown jobs before a session starts polling them.
			if _, err := a.client.GetJobStatus(cmd.Context(), id); err != nil {
				return err
			}
			session, err := a.store.Start(id)
			if err != nil {
				return err
			}
			defer a.store.Reset(id)
			select {
			case <-session.Snapshots():
			case <-session.Done():
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
			res, err := session.Sync(cmd.Context())
			if errors.Is(err, domain.ErrSyncUnavailable) {
				return fmt.Errorf("job %d is not processing; sync is only available while a job is processing", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Synced %d items: %s\n", res.Synced, res.Message)
			return nil
		},
	}
}

func (a *app) downloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <job-id>",
		Short: "Package the completed outputs of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			snap, err := a.client.GetJobStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			result, location, err := a.runner.Package(cmd.Context(), *snap)
			if err != nil {
				return err
			}
			printArchive(a, result.Files, len(result.Skipped), location)
			return nil
		},
	}
}

func (a *app) hooks() workflow.Hooks {
	var (
		mu   sync.Mutex
		last = map[string]int{}
	)
	return workflow.Hooks{
		UploadProgress: func(slot string, pct int) {
			mu.Lock()
			defer mu.Unlock()
			if prev, ok := last[slot]; ok && pct < 100 && pct-prev < 10 {
				return
			}
			last[slot] = pct
			fmt.Fprintf(a.out, "Uploading %s: %d%%\n", slot, pct)
		},
		Quote: func(q pricing.Quote) { printQuote(a, q) },
		Submitted: func(res domain.CreateJobResult) {
			fmt.Fprintf(a.out, "Job %d submitted: %d items, %d credits used\n", res.JobID, res.TotalItems, res.CreditsUsed)
		},
		Snapshot: func(snap domain.JobSnapshot) { printSnapshot(a, snap, false) },
	}
}

func (a *app) runnerFor(noDownload bool) *workflow.Runner {
	if noDownload {
		return a.runner.WithoutPackaging()
	}
	return a.runner
}

func (a *app) report(out *workflow.Outcome) error {
	final := out.Final
	switch final.Phase {
	case lifecycle.PhaseFailed:
		msg := "all items failed"
		if final.Snapshot != nil && final.Snapshot.Job.ErrorMessage != "" {
			msg = final.Snapshot.Job.ErrorMessage
		}
		return fmt.Errorf("job %d failed: %s", out.Job.JobID, msg)
	case lifecycle.PhasePartial:
		fmt.Fprintf(a.out, "Job %d finished with %d failed items\n", out.Job.JobID, len(final.Snapshot.FailedItems()))
	default:
		fmt.Fprintf(a.out, "Job %d completed\n", out.Job.JobID)
	}
	if out.Archive != nil {
		printArchive(a, out.Archive.Files, len(out.Archive.Skipped), out.Location)
	}
	return nil
}

func printSnapshot(a *app, snap domain.JobSnapshot, items bool) {
	fmt.Fprintf(a.out, "Job %d: %s %d/%d (%d%%)\n",
		snap.Job.ID, snap.Job.Status, snap.Job.CompletedItems, snap.Job.TotalItems, snap.ProgressPercent)
	if !items {
		return
	}
	for _, item := range snap.Items {
		line := fmt.Sprintf("  #%d %-10s %s", item.ID, item.Status, item.Label)
		if item.ErrorMessage != "" {
			line += " (" + item.ErrorMessage + ")"
		}
		fmt.Fprintln(a.out, strings.TrimRight(line, " "))
	}
}

func printArchive(a *app, files []string, skipped int, location string) {
	fmt.Fprintf(a.out, "Archive: %d files", len(files))
	if skipped > 0 {
		fmt.Fprintf(a.out, ", %d skipped", skipped)
	}
	fmt.Fprintln(a.out)
	if location != "" {
		fmt.Fprintf(a.out, "Saved to %s\n", location)
	}
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
