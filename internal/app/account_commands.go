package app

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clipqueue/client/internal/auth"
	"github.com/clipqueue/client/internal/models"
)

func newSignUpCommand(cc *commandContext) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an email/password account",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			if err := d.accounts.SignUp(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account created. Verify your email, then run `clipqueue login`.")
			return nil
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	return cmd
}

func newLoginCommand(cc *commandContext) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with email and password",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			ctx := cmd.Context()
			email := strings.TrimSpace(args[0])

			creds := d.accounts.VerifyUser(ctx, auth.Credentials{Email: email})
			if !creds.EmailSignIn {
				return errors.New("could not reach the account service")
			}
			if !creds.UserExists {
				return fmt.Errorf("no account exists for %s; run `clipqueue signup %s` first", email, email)
			}
			if creds.OAuthEnabled {
				d.logger.Info("account also has oauth sign-in enabled", "email", email)
			}

			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			profile, err := d.accounts.SignIn(ctx, email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", profile.Email)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	return cmd
}

func newLogoutCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			if err := d.accounts.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		}),
	}
}

func newResetPasswordCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Email a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			return d.accounts.RequestPasswordReset(cmd.Context(), args[0])
		}),
	}
}

func newWhoAmICommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			snap, err := loadSnapshot(cmd, d)
			if err != nil {
				return err
			}
			if snap.Profile == nil {
				return errors.New("account data unavailable")
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProfile(*snap.Profile, len(snap.Videos), time.Now()))
			return nil
		}),
	}
}

func newCheckoutCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <billing-period> <plan>",
		Short: "Print a checkout link for a subscription plan",
		Args:  cobra.ExactArgs(2),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			if _, err := d.requireSession(); err != nil {
				return err
			}
			url, err := d.accounts.CheckoutURL(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		}),
	}
}

func newPortalCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "portal",
		Short: "Print the subscription management link",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			if _, err := d.requireSession(); err != nil {
				return err
			}
			url, err := d.accounts.PortalURL(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		}),
	}
}

func newDeleteAccountCommand(cc *commandContext) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete the signed-in account",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			if _, err := d.requireSession(); err != nil {
				return err
			}
			if !confirmed {
				return errors.New("refusing to delete the account without --yes")
			}
			if err := d.accounts.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account deleted")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the deletion")
	return cmd
}

func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func renderProfile(p models.UserProfile, videoCount int, now time.Time) string {
	plan := "inactive"
	if p.PlanActive {
		plan = "active"
		if p.PlanExpires > 0 {
			plan += ", renews " + humanize.RelTime(time.Unix(p.PlanExpires, 0), now, "ago", "from now")
		}
	}
	rows := [][]string{
		{"Email", p.Email},
		{"Name", p.Name},
		{"Tier", string(p.Tier)},
		{"Credits", humanize.Comma(int64(p.Credits))},
		{"Plan", plan},
		{"Videos", strconv.Itoa(videoCount)},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
}
