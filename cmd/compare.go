package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/label-review/internal/compare"
	"github.com/sells-group/label-review/internal/model"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare one declared value against an extracted label value",
	Example: `  label-review compare --field alcohol_content --expected "45% Alc./Vol." --extracted "90 Proof"
  label-review compare --field health_warning --expected "GOVERNMENT WARNING: ..." --missing`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := comparisonInputFromFlags(cmd)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(compare.Compare(in))
	},
}

func init() {
	compareCmd.Flags().String("field", "", "field name (e.g. brand_name, net_contents)")
	compareCmd.Flags().String("expected", "", "value declared on the application")
	compareCmd.Flags().String("extracted", "", "value extracted from the label")
	compareCmd.Flags().Bool("missing", false, "treat the field as absent from the label")
	compareCmd.Flags().String("strategy", "", "override the field's match strategy (exact, fuzzy, normalized_numeric, contains, enumerated_phrase)")
	_ = compareCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(compareCmd)
}

// comparisonInputFromFlags builds a comparator request from compare's flags.
func comparisonInputFromFlags(cmd *cobra.Command) (model.ComparisonInput, error) {
	field, _ := cmd.Flags().GetString("field")
	expected, _ := cmd.Flags().GetString("expected")
	extracted, _ := cmd.Flags().GetString("extracted")
	missing, _ := cmd.Flags().GetBool("missing")
	strategy, _ := cmd.Flags().GetString("strategy")

	in := model.ComparisonInput{
		FieldName:     model.FieldName(field),
		ExpectedValue: expected,
	}
	if !missing {
		in.ExtractedValue = &extracted
	}
	if strategy != "" {
		s := model.MatchStrategy(strategy)
		if !s.Valid() {
			return in, eris.Errorf("unknown strategy %q", strategy)
		}
		in.MatchTypeOverride = &s
	}
	return in, nil
}
