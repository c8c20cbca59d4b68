package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/pkg/api/v1/client"
)

// jobOutput represents the filtered output for a job
type jobOutput struct {
	JobID         string `json:"job_id"`
	Platform      string `json:"platform,omitempty"`
	State         string `json:"state"`
	MediaID       string `json:"media_id,omitempty"`
	FailureKind   string `json:"failure_kind,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// jobListOutput represents the filtered output for a list of jobs
type jobListOutput struct {
	Jobs  []jobOutput `json:"jobs"`
	Total int         `json:"total"`
}

func init() {
	jobsCmd.AddCommand(submitJobCmd)
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(watchJobCmd)
	jobsCmd.AddCommand(cancelJobCmd)

	submitJobCmd.Flags().StringP("file", "f", "", "Image or video to publish")
	submitJobCmd.Flags().StringP("platform", "p", "instagram", "Platform to publish to (instagram, facebook)")
	submitJobCmd.Flags().StringP("account", "a", "", "Instagram account or Facebook page id")
	submitJobCmd.Flags().StringP("caption", "c", "", "Caption of the post")
	submitJobCmd.Flags().StringP("kind", "k", "", "Media kind (image, video); detected when empty")
	submitJobCmd.Flags().BoolP("watch", "w", false, "Follow the job until it settles")
	_ = submitJobCmd.MarkFlagRequired("file")
	_ = submitJobCmd.MarkFlagRequired("account")

	listJobsCmd.Flags().IntP("page", "n", 1, "Page of jobs to return")
	listJobsCmd.Flags().String("state", "", "Filter jobs by state")
	listJobsCmd.Flags().StringP("platform", "p", "", "Filter jobs by platform")

	getJobCmd.Flags().StringP("id", "i", "", "Job ID to fetch")
	_ = getJobCmd.MarkFlagRequired("id")
	watchJobCmd.Flags().StringP("id", "i", "", "Job ID to follow")
	_ = watchJobCmd.MarkFlagRequired("id")
	cancelJobCmd.Flags().StringP("id", "i", "", "Job ID to cancel")
	_ = cancelJobCmd.MarkFlagRequired("id")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage publish jobs",
}

var submitJobCmd = &cobra.Command{
	Use:   "submit",
	Short: "Upload media and queue it for publishing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		platform, _ := cmd.Flags().GetString("platform")
		account, _ := cmd.Flags().GetString("account")
		caption, _ := cmd.Flags().GetString("caption")
		kind, _ := cmd.Flags().GetString("kind")
		watch, _ := cmd.Flags().GetBool("watch")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error reading media: %w", err)
		}

		resp, err := apiClient.SubmitJob(cmd.Context(), client.SubmitJobRequest{
			Platform:  platform,
			AccountID: account,
			Caption:   caption,
			Kind:      kind,
			Filename:  filepath.Base(path),
			Data:      data,
		})
		if err != nil {
			return fmt.Errorf("error submitting job: %w", err)
		}
		if !watch {
			return printJSON(cmd, jobOutput{JobID: resp.JobID, Platform: platform, State: resp.State.String()})
		}
		return watchJob(cmd, resp.JobID)
	},
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List your publish jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		page, _ := cmd.Flags().GetInt("page")
		state, _ := cmd.Flags().GetString("state")
		platform, _ := cmd.Flags().GetString("platform")

		response, err := apiClient.ListJobs(cmd.Context(), client.ListJobsOptions{
			Page:     page,
			State:    state,
			Platform: platform,
		})
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		output := jobListOutput{
			Jobs:  make([]jobOutput, len(response.Rows)),
			Total: response.Pagination.Total,
		}
		for i, job := range response.Rows {
			output.Jobs[i] = jobOutput{
				JobID:         job.JobID,
				Platform:      job.Platform.String(),
				State:         job.State.String(),
				MediaID:       job.ResultMediaID,
				FailureKind:   string(job.FailureKind),
				FailureReason: job.FailureReason,
			}
		}
		return printJSON(cmd, output)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a specific job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")

		job, err := apiClient.GetJob(cmd.Context(), jobID)
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		return printJSON(cmd, job)
	},
}

var watchJobCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the progress events of a job until it settles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")
		return watchJob(cmd, jobID)
	},
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a job that has not started publishing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("id")

		resp, err := apiClient.CancelJob(cmd.Context(), jobID)
		if err != nil {
			return fmt.Errorf("error canceling job: %w", err)
		}
		return printJSON(cmd, jobOutput{JobID: resp.JobID, State: resp.State.String()})
	},
}

// watchJob prints one line per progress event and fails when the job failed
func watchJob(cmd *cobra.Command, jobID string) error {
	stream, err := apiClient.WatchJob(cmd.Context(), jobID)
	if err != nil {
		return fmt.Errorf("error watching job: %w", err)
	}

	var failed *events.Event
	for i, e := range stream {
		line := fmt.Sprintf("%-10s %-8s", e.Step, e.Status)
		if e.Message != "" {
			line += " " + e.Message
		}
		if id := e.Data["media_id"]; id != "" {
			line += " media_id=" + id
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		if e.Status == events.StatusError && failed == nil {
			failed = &stream[i]
		}
	}
	if failed != nil {
		return fmt.Errorf("job %s failed at %s: %s", jobID, failed.Step, failed.Message)
	}
	return nil
}

// GetJobsCmd returns the jobs command
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}
