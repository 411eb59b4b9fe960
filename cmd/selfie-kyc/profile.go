package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	profilestore "github.com/devilx291/social-loan-ledger-82/modules/profile-store"
)

func newProfileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and seed borrower profiles",
	}
	cmd.AddCommand(newProfileSeedCmd(opts), newProfileShowCmd(opts))
	return cmd
}

func newProfileSeedCmd(opts *rootOptions) *cobra.Command {
	var (
		name   string
		score  int
		mobile string
	)
	cmd := &cobra.Command{
		Use:   "seed <subject-id>",
		Short: "Create or replace a profile",
		Long:  "Writes an unverified profile with the given trust score (clamped to 0-100).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			p := profilestore.Profile{
				SubjectID:  args[0],
				Name:       name,
				TrustScore: profilestore.ClampTrustScore(score),
			}
			if err := store.Put(ctx, p); err != nil {
				return fmt.Errorf("seed %s: %w", p.SubjectID, err)
			}
			if mobile != "" {
				if err := profilestore.UpdateMobileNumber(ctx, store, p.SubjectID, mobile); err != nil {
					return fmt.Errorf("seed %s: %w", p.SubjectID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (trust score %d)\n", p.SubjectID, p.TrustScore)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&score, "score", profilestore.DefaultTrustScore, "initial trust score")
	cmd.Flags().StringVar(&mobile, "mobile", "", "mobile number")
	return cmd
}

// profileView is the printed form of a profile; the selfie is summarized.
type profileView struct {
	SubjectID    string    `json:"subjectId"`
	Name         string    `json:"name,omitempty"`
	TrustScore   int       `json:"trustScore"`
	IsVerified   bool      `json:"isVerified"`
	MobileNumber string    `json:"mobileNumber,omitempty"`
	HasSelfie    bool      `json:"hasSelfie"`
	SelfieBytes  int       `json:"selfieBytes,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newProfileView(p profilestore.Profile) profileView {
	return profileView{
		SubjectID:    p.SubjectID,
		Name:         p.Name,
		TrustScore:   p.TrustScore,
		IsVerified:   p.IsVerified,
		MobileNumber: p.MobileNumber,
		HasSelfie:    p.SelfieImage != "",
		SelfieBytes:  len(p.SelfieImage),
		UpdatedAt:    p.UpdatedAt,
	}
}

func newProfileShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <subject-id>",
		Short: "Print a profile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			p, err := store.Read(ctx, args[0])
			if errors.Is(err, profilestore.ErrNotFound) {
				return fmt.Errorf("no profile for %s", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(newProfileView(p))
		},
	}
}
