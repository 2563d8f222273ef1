package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/foraapi"
)

// foraCmd groups the FORA API client commands
var foraCmd = &cobra.Command{
	Use:   "fora",
	Short: "Query the FORA cloud through a running gateway",
	Long: `Calls the FORA ring and web APIs through 'healthlink serve' and prints the
decoded JSON answers. Authenticated calls use --token, or $FORA_TOKEN.

Examples:
  healthlink fora login --account clinic --password secret
  healthlink fora spo2 --user U123 --from "2025-09-23 00:00:00" --to "2025-09-24 00:00:00"
  healthlink fora sleep --user U123 --from ... --to ... --summary`,
}

var (
	foraGateway string
	foraToken   string
	foraTimeout time.Duration

	foraRange    foraapi.RangeParams
	foraSummary  bool
	foraLogin    foraapi.GroupLoginParams
	foraGroupID  string
	foraAuthOnly bool
	foraFiles    foraapi.UserFileListParams
	foraReport   foraapi.AnalysisResultParams
)

func init() {
	pf := foraCmd.PersistentFlags()
	pf.StringVar(&foraGateway, "gateway", "http://localhost:3000/fora-api", "Gateway base URL")
	pf.StringVar(&foraToken, "token", "", "Bearer token (default $FORA_TOKEN)")
	pf.DurationVar(&foraTimeout, "timeout", 30*time.Second, "Request timeout")

	for _, c := range []*cobra.Command{foraSpO2Cmd, foraActivityCmd, foraSleepCmd} {
		c.Flags().StringVar(&foraRange.UserID, "user", "", "User id")
		c.Flags().StringVar(&foraRange.StartDT, "from", "", "Start, YYYY-MM-DD HH:mm:ss")
		c.Flags().StringVar(&foraRange.EndDT, "to", "", "End, YYYY-MM-DD HH:mm:ss")
		_ = c.MarkFlagRequired("user")
		foraCmd.AddCommand(c)
	}
	foraSleepCmd.Flags().BoolVar(&foraSummary, "summary", false, "Decode stage summary and sleep score")

	foraLoginCmd.Flags().StringVar(&foraLogin.Account, "account", "", "Group account")
	foraLoginCmd.Flags().StringVar(&foraLogin.Password, "password", "", "Group password")
	foraLoginCmd.Flags().StringVar((*string)(&foraLogin.Lang), "lang", string(foraapi.LangEN), "Report language (en, tw)")
	_ = foraLoginCmd.MarkFlagRequired("account")
	_ = foraLoginCmd.MarkFlagRequired("password")

	for _, c := range []*cobra.Command{foraUsersCmd, foraQACmd} {
		c.Flags().StringVar(&foraGroupID, "group", "", "Group id from login")
		_ = c.MarkFlagRequired("group")
	}
	foraUsersCmd.Flags().BoolVar(&foraAuthOnly, "authorized", false, "List authorised users instead of patients")

	foraFilesCmd.Flags().StringVar(&foraFiles.GroupID, "group", "", "Group id from login")
	foraFilesCmd.Flags().StringVar(&foraFiles.UserID, "user", "", "User id")
	foraFilesCmd.Flags().StringVar(&foraFiles.Email, "email", "", "User email")
	_ = foraFilesCmd.MarkFlagRequired("group")
	_ = foraFilesCmd.MarkFlagRequired("user")

	rf := foraReportCmd.Flags()
	rf.StringVar(&foraReport.GroupID, "group", "", "Group id from login")
	rf.StringVar(&foraReport.UserID, "user", "", "User id")
	rf.StringVar(&foraReport.Email, "email", "", "User email")
	rf.StringVar(&foraReport.Filename, "file", "", "Report file name from 'fora files'")
	rf.StringVar(&foraReport.Mode, "mode", foraapi.AnalysisPDF, "Result mode (1 pdf, 2 data, 5 note)")
	rf.StringVar((*string)(&foraReport.Lang), "lang", "", "Report language (en, tw)")
	_ = foraReportCmd.MarkFlagRequired("group")
	_ = foraReportCmd.MarkFlagRequired("user")
	_ = foraReportCmd.MarkFlagRequired("file")

	foraCmd.AddCommand(foraLoginCmd, foraUsersCmd, foraFilesCmd, foraReportCmd, foraQACmd)
}

// ringCommand builds a ring data command around one client call.
func ringCommand(use, short string, call func(context.Context, *foraapi.Client, foraapi.RangeParams) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withForaClient(cmd, func(ctx context.Context, c *foraapi.Client) (any, error) {
				return call(ctx, c, foraRange)
			})
		},
	}
}

var foraSpO2Cmd = ringCommand("spo2", "Oxygen saturation and heart rate samples", func(ctx context.Context, c *foraapi.Client, p foraapi.RangeParams) (any, error) {
	return checked(c.SpO2HR(ctx, p))
})

var foraActivityCmd = ringCommand("activity", "Daily steps, calories and meals", func(ctx context.Context, c *foraapi.Client, p foraapi.RangeParams) (any, error) {
	return checked(c.Activity(ctx, p))
})

var foraSleepCmd = ringCommand("sleep", "Sleep sessions", func(ctx context.Context, c *foraapi.Client, p foraapi.RangeParams) (any, error) {
	resp, err := checked(c.Sleep(ctx, p))
	if err != nil || !foraSummary {
		return resp, err
	}
	return summarizeSleep(resp), nil
})

var foraLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to a group and print the token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withForaClient(cmd, func(ctx context.Context, c *foraapi.Client) (any, error) {
			return checked(c.GroupLogin(ctx, foraLogin))
		})
	},
}

var foraUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the patients of a group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := foraapi.JoinPatient
		if foraAuthOnly {
			status = foraapi.JoinAuthorized
		}
		return withForaClient(cmd, func(ctx context.Context, c *foraapi.Client) (any, error) {
			return checked(c.GroupUserList(ctx, foraapi.GroupUserListParams{GroupID: foraGroupID, UserJoinStatus: status}))
		})
	},
}

var foraFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the reports of a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withForaClient(cmd, func(ctx context.Context, c *foraapi.Client) (any, error) {
			return checked(c.UserFileList(ctx, foraFiles))
		})
	},
}

var foraReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch the analysis result of one report",
	Long: `Fetches an analysis result. With --mode 2 the HRV rows are decoded as well,
and with --mode 1 the sleep chart URL is printed to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withForaClient(cmd, func(ctx context.Context, c *foraapi.Client) (any, error) {
			resp, err := checked(c.AnalysisResult(ctx, foraReport))
			if err != nil {
				return resp, err
			}
			return describeReport(cmd, c, resp.(*foraapi.AnalysisResultResponse)), nil
		})
	},
}

type reportView struct {
	*foraapi.AnalysisResultResponse
	HRV  *foraapi.HRV  `json:"hrv,omitempty"`
	BHRV *foraapi.BHRV `json:"bhrv,omitempty"`
}

func describeReport(cmd *cobra.Command, c *foraapi.Client, resp *foraapi.AnalysisResultResponse) reportView {
	view := reportView{AnalysisResultResponse: resp}
	switch foraReport.Mode {
	case foraapi.AnalysisData:
		view.HRV, _ = foraapi.ParseHRV(resp.ResultData)
		view.BHRV, _ = foraapi.ParseBHRV(resp.ResultData)
	case foraapi.AnalysisPDF:
		if len(resp.ResultData) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), c.SleepImageURL(resp.ResultData[0], foraReport.Filename, foraReport.Lang))
		}
	}
	return view
}

var foraQACmd = &cobra.Command{
	Use:   "qa",
	Short: "List the questionnaire of a group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withForaClient(cmd, func(ctx context.Context, c *foraapi.Client) (any, error) {
			return checked(c.QAList(ctx, foraapi.QAListParams{GroupID: foraGroupID}))
		})
	},
}

// statusCarrier is any FORA answer.
type statusCarrier interface {
	Err() error
}

// checked turns a non-zero ReturnCode into an error while keeping the answer.
func checked[T statusCarrier](resp T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

type sleepSummary struct {
	Start  string                `json:"start"`
	End    string                `json:"end"`
	Stages *foraapi.StageSummary `json:"stages,omitempty"`
	Score  *foraapi.SleepScore   `json:"score,omitempty"`
}

func summarizeSleep(resp any) []sleepSummary {
	sleep, ok := resp.(*foraapi.SleepResponse)
	if !ok {
		return nil
	}
	out := make([]sleepSummary, 0, len(sleep.Data))
	for _, s := range sleep.Data {
		entry := sleepSummary{Start: s.StartTime, End: s.EndTime}
		entry.Stages, _ = foraapi.ParseStageSummary(s.StageSummary)
		entry.Score, _ = foraapi.ParseSleepScore(s.SleepScore)
		out = append(out, entry)
	}
	return out
}

func withForaClient(cmd *cobra.Command, call func(context.Context, *foraapi.Client) (any, error)) error {
	logger, err := configureLogger(cmd, logrus.WarnLevel)
	if err != nil {
		return err
	}

	client, err := foraapi.NewClient(foraGateway, nil, logger)
	if err != nil {
		return err
	}
	token := foraToken
	if token == "" {
		token = os.Getenv("FORA_TOKEN")
	}
	client.SetToken(token)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, foraTimeout)
	defer cancelTimeout()

	resp, err := call(ctx, client)
	if resp != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}
