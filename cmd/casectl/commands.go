package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/casereview/pkg/apiclient"
	"github.com/synaptica-ai/casereview/pkg/approval"
	"github.com/synaptica-ai/casereview/pkg/checklist"
	"github.com/synaptica-ai/casereview/pkg/common/config"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
	"github.com/synaptica-ai/casereview/pkg/session"
	"github.com/synaptica-ai/casereview/pkg/summary"
	"github.com/synaptica-ai/casereview/pkg/upload"
	"golang.org/x/oauth2"
)

func newClient(g *globalFlags) (*apiclient.Client, error) {
	c, err := apiclient.New(g.apiURL, g.timeout)
	if err != nil {
		return nil, codeError(3, "invalid --api: %s", err)
	}
	return c, nil
}

// authedClient loads the stored token. An expired token is refused locally.
func authedClient(g *globalFlags) (*apiclient.Client, models.Role, error) {
	tok, err := readToken(g.tokenFile)
	if err != nil {
		return nil, "", codeError(2, "not signed in: %s (run casectl login)", err)
	}
	if !session.IsTokenValid(tok.AccessToken, time.Now()) {
		return nil, "", codeError(2, "stored token expired (run casectl login)")
	}
	c, err := newClient(g)
	if err != nil {
		return nil, "", err
	}
	role, _ := session.RoleFromToken(tok.AccessToken)
	return c.WithToken(tok), role, nil
}

func readToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &tok, nil
}

func writeToken(path string, tok oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func loginCmd(g *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CASECTL_PASSWORD")
			}
			c, err := newClient(g)
			if err != nil {
				return err
			}
			resp, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return codeError(2, "%s", err)
			}
			var s session.Session
			s.SetToken(resp.AccessToken, resp.TokenType)
			user, err := c.WithToken(&s.Token).Me(cmd.Context())
			if err != nil {
				return codeError(2, "%s", err)
			}
			if err := writeToken(g.tokenFile, s.Token); err != nil {
				return codeError(1, "storing token: %s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s), token valid until %s\n",
				user.Email, user.Role, s.Token.Expiry.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (default $CASECTL_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func tokenCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Work with the stored access token"}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Decode the stored token without contacting the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := readToken(g.tokenFile)
			if err != nil {
				return codeError(2, "no stored token: %s", err)
			}
			claims, err := session.DecodeToken(tok.AccessToken)
			if err != nil {
				return codeError(2, "%s", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "subject\t%s\n", claims.Subject)
			fmt.Fprintf(w, "email\t%s\n", claims.Email)
			fmt.Fprintf(w, "role\t%s\n", claims.Role)
			if claims.ExpiresAt != nil {
				fmt.Fprintf(w, "expires\t%s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
			}
			fmt.Fprintf(w, "valid\t%t\n", session.IsTokenValid(tok.AccessToken, time.Now()))
			return w.Flush()
		},
	})
	return cmd
}

func uploadCmd(g *globalFlags, cfg *config.Config) *cobra.Command {
	var donorID string
	var concurrency int
	var refresh bool
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>...",
		Short: "Upload PDF documents, optionally to an existing donor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(g)
			if err != nil {
				return err
			}
			files := make([]upload.File, 0, len(args))
			for _, path := range args {
				f, err := upload.FromPath(path)
				if err != nil {
					return codeError(3, "%s", err)
				}
				files = append(files, f)
			}

			batch := upload.NewBatch(c, upload.NewValidator(cfg.UploadMaxBytes), models.ID(donorID), concurrency)
			defer batch.Close()
			batch.Add(files...)
			sum, err := batch.UploadAll(cmd.Context())
			if err != nil {
				return codeError(1, "%s", err)
			}
			if refresh {
				if err := batch.Refresh(cmd.Context()); err != nil {
					logger.Log.WithError(err).Warn("status refresh failed")
				}
			}

			if err := printItems(cmd, batch.Items()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d accepted, %d failed, %d rejected\n", sum.Accepted, sum.Failed, sum.Rejected)
			if sum.Failed+sum.Rejected > 0 {
				return codeError(4, "some files were not uploaded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&donorID, "donor", "", "Donor id (default: derived by the backend from each filename)")
	cmd.Flags().IntVar(&concurrency, "concurrency", cfg.UploadConcurrency, "Parallel uploads")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-read server statuses after uploading")
	return cmd
}

func printItems(cmd *cobra.Command, items []upload.Item) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATUS\tDONOR\tDOCUMENT\tTYPE\tERROR")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", it.Filename, it.Status, it.DonorID, it.DocumentID, it.DocumentType, it.Error)
	}
	return w.Flush()
}

// donorBatch loads a donor's documents into a batch so they can be listed or
// removed.
func donorBatch(cmd *cobra.Command, g *globalFlags, cfg *config.Config, donorID string) (*upload.Batch, error) {
	c, _, err := authedClient(g)
	if err != nil {
		return nil, err
	}
	batch := upload.NewBatch(c, upload.NewValidator(cfg.UploadMaxBytes), models.ID(donorID), 1)
	if err := batch.Refresh(cmd.Context()); err != nil {
		batch.Close()
		return nil, codeError(1, "%s", err)
	}
	return batch, nil
}

func statusCmd(g *globalFlags, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status <donor-id>",
		Short: "Show processing status of a donor's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := donorBatch(cmd, g, cfg, args[0])
			if err != nil {
				return err
			}
			defer batch.Close()
			return printItems(cmd, batch.Items())
		},
	}
}

func deleteCmd(g *globalFlags, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <donor-id> <document-id>",
		Short: "Delete one of a donor's documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := donorBatch(cmd, g, cfg, args[0])
			if err != nil {
				return err
			}
			defer batch.Close()
			if err := batch.RemoveDocument(cmd.Context(), models.ID(args[1])); err != nil {
				return codeError(1, "%s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s of donor %s\n", args[1], args[0])
			return nil
		},
	}
}

func evaluate(ctx context.Context, c *apiclient.Client, defs checklist.Definitions, donorID models.ID) (checklist.Checklist, error) {
	cs, err := summary.Fetch(ctx, c, donorID)
	if err != nil {
		return checklist.Checklist{}, err
	}
	payload, err := cs.Payload()
	if err != nil {
		return checklist.Checklist{}, err
	}
	return checklist.Evaluate(defs, cs.Documents, extraction.ConditionalEntries(payload)), nil
}

func checklistCmd(g *globalFlags, cfg *config.Config) *cobra.Command {
	var defsPath string
	cmd := &cobra.Command{
		Use:   "checklist <donor-id>",
		Short: "Show the required-document checklist of a donor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := checklist.LoadDefinitions(defsPath)
			if err != nil {
				return codeError(3, "%s", err)
			}
			c, _, err := authedClient(g)
			if err != nil {
				return err
			}
			list, err := evaluate(cmd.Context(), c, defs, models.ID(args[0]))
			if err != nil {
				return codeError(1, "%s", err)
			}
			out := cmd.OutOrStdout()
			for _, line := range list.Lines() {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "%d of %d required documents present\n", list.Present, list.Required)
			return nil
		},
	}
	cmd.Flags().StringVar(&defsPath, "definitions", cfg.ChecklistConfig, "Checklist definition YAML (default: built-in)")
	return cmd
}

func approveCmd(g *globalFlags, cfg *config.Config) *cobra.Command {
	var status, comment, documentID string
	cmd := &cobra.Command{
		Use:   "approve <donor-id>",
		Short: "Record an approve or reject decision with the current checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := approval.Input{Status: models.ApprovalStatus(strings.ToLower(status)), Comment: comment}
			if err := in.Validate(); err != nil {
				return codeError(3, "%s", err)
			}
			defs, err := checklist.LoadDefinitions(cfg.ChecklistConfig)
			if err != nil {
				return codeError(3, "%s", err)
			}
			c, role, err := authedClient(g)
			if err != nil {
				return err
			}
			donorID := models.ID(args[0])
			wf := approval.New(c, approval.Target{DonorID: donorID, DocumentID: models.ID(documentID)}, role)
			if err := wf.Open(cmd.Context()); err != nil {
				return codeError(1, "%s", err)
			}
			list, err := evaluate(cmd.Context(), c, defs, donorID)
			if err != nil {
				return codeError(1, "%s", err)
			}
			snapshot, err := list.Snapshot()
			if err != nil {
				return err
			}
			decision, err := wf.Submit(cmd.Context(), in, snapshot)
			if err != nil {
				return codeError(1, "%s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s decision %s on donor %s (%d prior decisions)\n",
				decision.Status, decision.ID, donorID, len(wf.History())-1)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "approved or rejected")
	cmd.Flags().StringVar(&comment, "comment", "", "Reason for the decision")
	cmd.Flags().StringVar(&documentID, "document", "", "Decide on one document instead of the donor summary")
	_ = cmd.MarkFlagRequired("status")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func historyCmd(g *globalFlags, cfg *config.Config) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "history <donor-id>",
		Short: "List approval decisions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(g)
			if err != nil {
				return err
			}
			donorID := models.ID(args[0])
			decisions, err := c.ApprovalHistory(cmd.Context(), donorID)
			if err != nil {
				return codeError(1, "%s", err)
			}
			decisions = approval.SortNewestFirst(decisions)

			var current checklist.Checklist
			if showDiff {
				defs, err := checklist.LoadDefinitions(cfg.ChecklistConfig)
				if err != nil {
					return codeError(3, "%s", err)
				}
				if current, err = evaluate(cmd.Context(), c, defs, donorID); err != nil {
					return codeError(1, "%s", err)
				}
			}

			out := cmd.OutOrStdout()
			if len(decisions) == 0 {
				fmt.Fprintln(out, "No decisions recorded.")
				return nil
			}
			for _, d := range decisions {
				who := d.ApproverName
				if who == "" {
					who = d.ApproverID.String()
				}
				fmt.Fprintf(out, "%s  %-8s  %s  %s\n", d.CreatedAt.Local().Format("2006-01-02 15:04"), d.Status, who, d.Comment)
				if !showDiff || len(d.ChecklistDataSnapshot) == 0 {
					continue
				}
				lines, err := checklist.DiffSnapshot(d.ChecklistDataSnapshot, current)
				if err != nil {
					fmt.Fprintf(out, "    (snapshot unreadable: %s)\n", err)
					continue
				}
				if !checklist.Changed(lines) {
					fmt.Fprintln(out, "    checklist unchanged since this decision")
					continue
				}
				for _, l := range lines {
					if l.Op != checklist.DiffEqual {
						fmt.Fprintf(out, "    %s %s\n", l.Op, l.Text)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Compare each decision's checklist with the current one")
	return cmd
}
