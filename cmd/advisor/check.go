package main

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// errRejected makes the process exit non-zero after a report was printed.
var errRejected = errors.New("rejected")

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the validators offline against a piece of text",
	}
	cmd.AddCommand(checkInputCmd(), checkResponseCmd())
	return cmd
}

func checkInputCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "input <text>",
		Short: "Validate a user message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			v, err := security.NewInputValidator(cfg.Input, nil)
			if err != nil {
				return err
			}
			tier, _ := cmd.Flags().GetString("tier")

			res := v.ValidateUserInput(strings.Join(args, " "), conversation.ParseTier(tier), security.RequestInfo{})
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().String("tier", string(conversation.TierFree), "Subscription tier (free, pro, enterprise)")
	return cmd
}

// responseCheck is the report printed by `check response`.
type responseCheck struct {
	quality.Result
	WithDisclaimers string                          `json:"with_disclaimers,omitempty"`
	Relevance       *quality.Relevance              `json:"relevance,omitempty"`
	Hallucination   quality.HallucinationAssessment `json:"hallucination"`
}

func checkResponseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "response <text>",
		Short: "Validate a model response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			v := quality.NewValidator(cfg.Quality)
			text := strings.Join(args, " ")

			rep := responseCheck{
				Result:        v.ValidateResponse(text),
				Hallucination: v.DetectHallucination(text),
			}
			if rep.Curable() {
				rep.WithDisclaimers = v.AddDisclaimers(text)
			}
			if q, _ := cmd.Flags().GetString("query"); q != "" {
				rel := v.CheckRelevance(text, q)
				rep.Relevance = &rel
			}
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.Valid && !rep.Curable() {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().String("query", "", "Question the response answers, for the relevance check")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
