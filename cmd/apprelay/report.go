package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/apprelay/apprelay/internal/cli"
)

func defaultServer() string {
	if v := os.Getenv("APPRELAY_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Send builds to a running server",
	}
	cmd.AddCommand(newReportUploadCommand())
	cmd.AddCommand(newReportCICommand())
	return cmd
}

func newReportUploadCommand() *cobra.Command {
	var r cli.BuildReport
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a build file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := cli.ReportBuild(cmd.Context(), &http.Client{}, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build created: id=%s size=%s url=%s\n", b.ID, b.Size, b.DownloadURL)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.Server, "server", defaultServer(), "server URL (APPRELAY_SERVER)")
	f.StringVar(&r.File, "file", "", "path to the .ipa or .apk")
	f.StringVar(&r.AppName, "app", "", "application name")
	f.StringVar(&r.VersionName, "version-name", "", "version name, e.g. 1.4.0")
	f.StringVar(&r.VersionCode, "version-code", "", "version code, e.g. 140")
	f.StringVar(&r.Platform, "platform", "", "iOS or Android")
	f.StringVar(&r.Channel, "channel", "", "Beta, Staging or Production")
	f.StringVar(&r.Changelog, "changelog", "", "release notes")
	f.StringVar(&r.CommitHash, "commit", "", "source commit")
	f.StringVar(&r.BuildStatus, "status", "", "build status (default Success)")
	f.StringSliceVar(&r.AllowedUDIDs, "udid", nil, "allowed device UDID (iOS, repeatable)")
	for _, name := range []string{"file", "app", "version-name", "version-code", "platform", "channel", "changelog"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newReportCICommand() *cobra.Command {
	var t cli.CITrigger
	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Trigger a CI build",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := cli.TriggerCI(cmd.Context(), &http.Client{}, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "CI build queued: id=%s ci_build=%s logs=%s\n", b.ID, b.CIBuildID, b.CILogsURL)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&t.Server, "server", defaultServer(), "server URL (APPRELAY_SERVER)")
	f.StringVar(&t.ProjectName, "project", "", "project (application) name")
	f.StringVar(&t.Branch, "branch", "", "branch to build")
	f.StringVar(&t.TriggeredBy, "user", "", "user triggering the build")
	f.StringVar(&t.Platform, "platform", "", "iOS or Android")
	f.StringVar(&t.Channel, "channel", "", "Beta, Staging or Production")
	for _, name := range []string{"project", "branch", "user", "platform", "channel"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
