package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/label-review/internal/adjudicate"
	"github.com/sells-group/label-review/internal/model"
)

// adjudicateInput is the file format read by the adjudicate command.
type adjudicateInput struct {
	Category        model.BeverageCategory `yaml:"category"`
	ContainerSizeML float64                `yaml:"container_size_ml"`
	Verdicts        []model.FieldVerdict   `yaml:"verdicts"`
}

// adjudicateOutput mirrors the API's adjudicate response.
type adjudicateOutput struct {
	adjudicate.Assessment
	Confidence int `json:"confidence"`
}

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate <verdicts-file|->",
	Short: "Roll a set of field verdicts up into a disposition",
	Long:  "Reads a YAML or JSON document with category, container_size_ml, and verdicts. Pass - to read it from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		out, err := runAdjudicate(data)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(adjudicateCmd)
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return data, eris.Wrap(err, "adjudicate: read stdin")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "adjudicate: read %s", path)
	}
	return data, nil
}

func runAdjudicate(data []byte) (adjudicateOutput, error) {
	var in adjudicateInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return adjudicateOutput{}, eris.Wrap(err, "adjudicate: parse verdicts")
	}
	if !in.Category.Valid() {
		return adjudicateOutput{}, eris.Errorf("adjudicate: unknown category %q", in.Category)
	}
	return adjudicateOutput{
		Assessment: adjudicate.Assess(in.Verdicts, in.Category, in.ContainerSizeML),
		Confidence: adjudicate.AggregateConfidence(in.Verdicts),
	}, nil
}
