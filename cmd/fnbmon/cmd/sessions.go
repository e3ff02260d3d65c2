package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fnb-tools/fnbmon/internal/stats"
	"github.com/fnb-tools/fnbmon/internal/storage"
)

var (
	exportFormat string
	exportOutput string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(store)

		sessions, err := store.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTARTED\tDURATION\tSAMPLES\tCONNECTION")
		for _, info := range sessions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				info.ID, info.Name, formatTimestamp(info.StartTime),
				sessionDuration(info), humanize.Comma(info.SampleCount),
				info.ConnectionType)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show a session's summary statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(store)

		sess, err := resolveSession(cmd, store, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Session:  %s\n", sess.Name)
		fmt.Printf("Started:  %s\n", sess.StartTime.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Ended:    %s\n", sess.EndTime.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Via:      %s\n", sess.ConnectionType)
		printSnapshot(os.Stdout, sess.Stats)

		phases := stats.Phases(sess.Readings, 0)
		if len(phases) > 1 {
			fmt.Println("Phases:")
			for _, p := range phases {
				span := sess.Readings[p.End].Timestamp.Sub(sess.Readings[p.Start].Timestamp)
				fmt.Printf("  %-8s %s (%s samples)\n",
					p.Kind, stats.FormatDuration(span.Seconds()),
					humanize.Comma(int64(p.Samples())))
			}
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its readings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session ID %q", args[0])
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(store)

		if err := store.DeleteSession(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted session #%d\n", id)
		return nil
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Export a session as CSV or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(store)

		sess, err := resolveSession(cmd, store, args[0])
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "csv":
			err = storage.ExportCSV(out, sess)
		case "json":
			err = storage.ExportJSON(out, sess)
		default:
			return fmt.Errorf("unknown export format %q", exportFormat)
		}
		if err != nil {
			return err
		}
		if exportOutput != "" {
			fmt.Printf("Exported %d readings to %s\n", len(sess.Readings), exportOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)

	sessionsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "export format (csv, json)")
	sessionsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}

func formatTimestamp(value string) string {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func sessionDuration(info storage.SessionInfo) string {
	start, err := time.Parse(time.RFC3339Nano, info.StartTime)
	if err != nil {
		return "-"
	}
	end, err := time.Parse(time.RFC3339Nano, info.EndTime)
	if err != nil {
		return "-"
	}
	return stats.FormatDuration(end.Sub(start).Seconds())
}
