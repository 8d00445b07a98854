package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/application-tracker/internal/job"
	"github.com/cuongbtq/application-tracker/internal/tracker"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a job application",
	Long:  "Create a job application. The created job is streamed back and applied to the local cache frame by frame.",
	RunE:  runAdd,
}

var getCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job application",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List job applications, newest first",
	RunE:  runList,
}

var updateCmd = &cobra.Command{
	Use:   "update <job-id>",
	Short: "Update a job application",
	Long:  "Update a job application. Fields that are not given keep their current value.",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job application",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	jobPosition  string
	jobCompany   string
	jobURL       string
	jobStatus    string
	jobNotes     string
	jobImagePath string
)

func init() {
	for _, cmd := range []*cobra.Command{addCmd, updateCmd} {
		cmd.Flags().StringVar(&jobPosition, "position", "", "Position title")
		cmd.Flags().StringVar(&jobCompany, "company", "", "Company name")
		cmd.Flags().StringVar(&jobURL, "url", "", "Link to the job posting")
		cmd.Flags().StringVar(&jobStatus, "status", "", "Application status (add defaults to applied)")
		cmd.Flags().StringVar(&jobNotes, "notes", "", "Free-form notes")
	}
	addCmd.Flags().StringVar(&jobImagePath, "image", "", "Path to a PNG or JPEG screenshot of the posting")

	rootCmd.AddCommand(addCmd, getCmd, listCmd, updateCmd, deleteCmd)
}

func runAdd(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	payload := job.CreatePayload{
		Position: jobPosition,
		Company:  jobCompany,
		URL:      jobURL,
		Status:   flagOr(cmd.Flags().Changed("status"), jobStatus, job.StatusApplied),
		Notes:    jobNotes,
	}
	if jobImagePath != "" {
		data, err := os.ReadFile(jobImagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		payload.Image = base64.StdEncoding.EncodeToString(data)
	}

	if err := a.service.CreateJob(cmd.Context(), payload); err != nil {
		return err
	}

	created, ok := a.service.LastCreated()
	if !ok {
		return errors.New("job created but no job was returned")
	}
	printJob(cmd.OutOrStdout(), created)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.service.Job(cmd.Context(), args[0])
	if errors.Is(err, tracker.ErrJobDeleted) {
		return fmt.Errorf("job %s not found", args[0])
	}
	if err != nil {
		return err
	}
	printJob(cmd.OutOrStdout(), r)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.service.Jobs(cmd.Context())
	if err != nil {
		return err
	}
	printJobs(cmd.OutOrStdout(), jobs)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := a.service.Job(cmd.Context(), args[0])
	if errors.Is(err, tracker.ErrJobDeleted) {
		return fmt.Errorf("job %s not found", args[0])
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	payload := job.UpdatePayload{
		ID:       current.ID,
		Position: flagOr(flags.Changed("position"), jobPosition, current.Position),
		Company:  flagOr(flags.Changed("company"), jobCompany, current.Company),
		URL:      flagOr(flags.Changed("url"), jobURL, current.URL),
		Status:   flagOr(flags.Changed("status"), jobStatus, current.CurrentStatus),
		Notes:    flagOr(flags.Changed("notes"), jobNotes, current.Notes),
	}

	updated, err := a.service.UpdateJob(cmd.Context(), payload)
	if err != nil {
		return err
	}
	printJob(cmd.OutOrStdout(), updated)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.DeleteJob(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func flagOr(changed bool, value, fallback string) string {
	if changed {
		return value
	}
	return fallback
}

func printJob(w io.Writer, r job.Resource) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Position:\t%s\n", r.Position)
	fmt.Fprintf(tw, "Company:\t%s\n", r.Company)
	fmt.Fprintf(tw, "URL:\t%s\n", r.URL)
	fmt.Fprintf(tw, "Status:\t%s\n", r.CurrentStatus)
	if r.Notes != "" {
		fmt.Fprintf(tw, "Notes:\t%s\n", r.Notes)
	}
	if r.Image != nil {
		fmt.Fprintf(tw, "Image:\t%s\n", r.Image.URL)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", r.DisplayCreatedAt())
	if updated := r.DisplayUpdatedAt(); updated != "" {
		fmt.Fprintf(tw, "Updated:\t%s\n", updated)
	}
	for _, s := range r.StatusHistory {
		fmt.Fprintf(tw, "  %s\t%s\n", s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Status)
	}
	tw.Flush()
}

func printJobs(w io.Writer, jobs []job.Resource) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPOSITION\tCOMPANY\tSTATUS\tCREATED")
	for _, r := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Position, r.Company, r.CurrentStatus, r.DisplayCreatedAt())
	}
	tw.Flush()
}
