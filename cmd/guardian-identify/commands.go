package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"treeguardian/core"
)

func newIdentifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <photo>",
		Short: "Upload a photo, identify the tree and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			logger := opts.logger(cmd.ErrOrStderr())

			player, err := opts.playerID()
			if err != nil {
				return err
			}
			remote, err := opts.classifier(logger)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ident, err := remote.Identify(ctx, f.Name(), f)
			if err != nil {
				return fmt.Errorf("identify: %w", err)
			}

			svc, err := opts.service(logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.StartSession(ctx, player, core.Date{}); err != nil {
				return err
			}
			res, err := svc.RecordIdentification(ctx, player, ident.Input())
			if err != nil {
				return err
			}
			printIdentification(out, ident.Species, ident.Confidence, res)
			return nil
		},
	}
}

func printIdentification(out io.Writer, species string, confidence float64, res core.IdentificationResult) {
	fmt.Fprintf(out, "%s (%.1f%% confidence)\n", species, confidence)
	if res.IsNewDiscovery {
		fmt.Fprintln(out, "New species discovered!")
	} else {
		fmt.Fprintf(out, "Seen %d times\n", res.Record.TimesIdentified)
	}
	fmt.Fprintf(out, "+%d points, %d total\n", res.PointsAwarded, res.TotalPoints)
	if res.DailyMissionCompleted {
		fmt.Fprintln(out, "Daily mission complete!")
	}
	for _, lvl := range res.LevelsGained {
		fmt.Fprintf(out, "Level up! You reached level %d\n", lvl)
	}
	for _, a := range res.Achievements {
		fmt.Fprintf(out, "Achievement unlocked: %s %s\n", a.Icon, a.Name)
	}
	if res.HealthCheckSupported {
		fmt.Fprintf(out, "A health check is available: guardian-identify diagnose %q <photo>\n", species)
	}
}

func newDiagnoseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <species> <photo>",
		Short: "Run a health check on a collected plant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			species, path := args[0], args[1]
			if !core.SupportsHealthCheck(species) {
				return fmt.Errorf("no health check available for %q", species)
			}
			ctx := cmd.Context()
			logger := opts.logger(cmd.ErrOrStderr())

			player, err := opts.playerID()
			if err != nil {
				return err
			}
			remote, err := opts.classifier(logger)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			diag, err := remote.Diagnose(ctx, species, f.Name(), f)
			if err != nil {
				return fmt.Errorf("diagnose: %w", err)
			}

			svc, err := opts.service(logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.RecordDiagnosis(ctx, player, diag.Input())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, diag.Report)
			fmt.Fprintf(out, "%s is now marked %s\n", res.Record.Species, res.Record.Health)
			return nil
		},
	}
}

func newProfileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show local progress for the player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			player, err := opts.playerID()
			if err != nil {
				return err
			}
			svc, err := opts.service(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.GetState(cmd.Context(), player)
			if err != nil {
				return err
			}
			sum := svc.Rules().Summary(st)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", sum.Name, sum.PlayerID)
			fmt.Fprintf(out, "Level %d, %d/%d XP, %d points, %d day streak\n",
				sum.Level, sum.Experience, sum.RequiredExperience, sum.Points, sum.Streak)
			fmt.Fprintf(out, "Daily mission: %d/%d\n", st.Mission.Progress, st.Mission.Target)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SPECIES\tSEEN\tHEALTH")
			for _, rec := range core.Collection(st, core.FilterAll) {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", rec.Species, rec.TimesIdentified, rec.Health)
			}
			return tw.Flush()
		},
	}
}

func newLeaderboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the identification service's global leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			remote, err := opts.classifier(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			entries, err := remote.Leaderboard(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tPLAYER\tPOINTS")
			for i, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, e.User, e.Points)
			}
			return tw.Flush()
		},
	}
}

func newPingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the identification service is online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			remote, err := opts.classifier(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			if err := remote.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is online\n", opts.apiURL)
			return nil
		},
	}
}
