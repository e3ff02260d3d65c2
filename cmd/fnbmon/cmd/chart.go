package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fnb-tools/fnbmon/internal/chart"
)

var (
	chartOutput string
	chartWidth  int
	chartHeight int
)

var chartCmd = &cobra.Command{
	Use:   "chart <session>",
	Short: "Render a session's voltage and current curves to a PNG",
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

		width, height := chartWidth, chartHeight
		if width == 0 {
			width = cfg.Chart.Width
		}
		if height == 0 {
			height = cfg.Chart.Height
		}
		renderer, err := chart.New(chart.Config{
			Width:    width,
			Height:   height,
			FontPath: cfg.Chart.FontPath,
		})
		if err != nil {
			return err
		}

		output := chartOutput
		if output == "" {
			output = sess.Name + ".png"
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := renderer.RenderTo(f, sess); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d readings)\n", output, len(sess.Readings))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)

	chartCmd.Flags().StringVarP(&chartOutput, "output", "o", "", "output file (default <session name>.png)")
	chartCmd.Flags().IntVar(&chartWidth, "width", 0, "chart width in pixels")
	chartCmd.Flags().IntVar(&chartHeight, "height", 0, "chart height in pixels")
}
