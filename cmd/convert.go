package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tranreloc/tranreloc/sim/params"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between the parameter directory layout and YAML scenarios",
	Long:  "Convert a parameter directory to a YAML scenario (written to stdout for piping), or a YAML scenario to a parameter directory.",
}

// --- tranreloc convert params ---

var convertParamsDir string

var convertParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Convert a parameter directory to a YAML scenario",
	Run: func(cmd *cobra.Command, args []string) {
		sc, err := params.ReadDirectory(convertParamsDir)
		if err != nil {
			logrus.Fatalf("Reading parameter directory failed: %v", err)
		}
		if err := writeScenario(os.Stdout, sc); err != nil {
			logrus.Fatalf("YAML marshal failed: %v", err)
		}
	},
}

// --- tranreloc convert scenario ---

var (
	convertScenarioFile string
	convertScenarioDir  string
)

var convertScenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Convert a YAML scenario to a parameter directory",
	Run: func(cmd *cobra.Command, args []string) {
		sc, err := params.ReadScenarioFile(convertScenarioFile)
		if err != nil {
			logrus.Fatalf("Reading scenario failed: %v", err)
		}
		// Reject scenarios the engine could not evaluate before writing anything.
		if _, err := sc.System(); err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
		if err := params.WriteDirectory(convertScenarioDir, sc); err != nil {
			logrus.Fatalf("Writing parameter directory failed: %v", err)
		}
		logrus.Infof("Parameter directory written to %s", convertScenarioDir)
	},
}

// writeScenario marshals a scenario to YAML and writes it to w.
func writeScenario(w io.Writer, sc *params.Scenario) error {
	data, err := sc.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, string(data))
	return err
}

func init() {
	convertParamsCmd.Flags().StringVar(&convertParamsDir, "dir", "Parameters", "Path to the parameter directory")

	convertScenarioCmd.Flags().StringVar(&convertScenarioFile, "file", "", "Path to the YAML scenario")
	convertScenarioCmd.Flags().StringVar(&convertScenarioDir, "dir", "Parameters", "Parameter directory to write")
	_ = convertScenarioCmd.MarkFlagRequired("file")

	convertCmd.AddCommand(convertParamsCmd)
	convertCmd.AddCommand(convertScenarioCmd)

	rootCmd.AddCommand(convertCmd)
}
