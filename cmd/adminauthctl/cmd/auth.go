package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/adminAuth/controller"
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in with a password and a one-time code",
	Long: `Run the password step, then prompt for the one-time code that was
printed to stderr.

With --no-prompt the command stops after the password step; finish with
"adminauthctl verify <code>". This needs a shared backend (--redis).

Examples:
  adminauthctl login admin@example.com
  adminauthctl login admin@example.com --password 'Admin@123' --no-prompt`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <code>",
	Short: "Submit the one-time code of a pending login",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Send a new one-time code for a pending login",
	RunE:  runResend,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show whether the stored session is still signed in",
	RunE:  runCheck,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the stored session",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().String("password", "", "password (prompted when empty)")
	loginCmd.Flags().Bool("no-prompt", false, "stop after the password step")

	verifyCmd.Flags().String("email", "", "email of the pending login (default: the last login)")
	resendCmd.Flags().String("email", "", "email of the pending login (default: the last login)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(resendCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	email := args[0]
	pw, _ := cmd.Flags().GetString("password")
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	in := bufio.NewReader(cmd.InOrStdin())
	if pw == "" {
		if pw, err = prompt(cmd.ErrOrStderr(), in, "Password: "); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if err := a.ctrl.Login(ctx, email, pw); err != nil {
		return stateError(a.ctrl.Snapshot(), err)
	}
	if err := a.storage.Set(keyPendingEmail, email); err != nil {
		return fmt.Errorf("failed to remember pending login: %w", err)
	}

	if noPrompt {
		fmt.Fprintln(cmd.OutOrStdout(), "Code sent. Finish with: adminauthctl verify <code>")
		return nil
	}

	code, err := prompt(cmd.ErrOrStderr(), in, "Code: ")
	if err != nil {
		return err
	}
	if err := a.ctrl.VerifyOTP(ctx, code); err != nil {
		return a.verifyFailed(err)
	}
	_ = a.storage.Delete(keyPendingEmail)
	return printState(cmd.OutOrStdout(), a.ctrl.Snapshot())
}

// verifyFailed forgets the pending login once the controller has left the
// OTP step.
func (a *app) verifyFailed(err error) error {
	state := a.ctrl.Snapshot()
	if !state.OTPStep {
		_ = a.storage.Delete(keyPendingEmail)
	}
	return stateError(state, err)
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	email, err := pendingEmail(cmd, a)
	if err != nil {
		return err
	}
	a.ctrl.ResumeOTPStep(email)
	if err := a.ctrl.VerifyOTP(cmd.Context(), args[0]); err != nil {
		return a.verifyFailed(err)
	}
	_ = a.storage.Delete(keyPendingEmail)
	return printState(cmd.OutOrStdout(), a.ctrl.Snapshot())
}

func runResend(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	email, err := pendingEmail(cmd, a)
	if err != nil {
		return err
	}
	a.ctrl.ResumeOTPStep(email)
	if err := a.ctrl.ResendOTP(cmd.Context()); err != nil {
		return stateError(a.ctrl.Snapshot(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "New code sent to %s\n", email)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	a.ctrl.Restore()
	if err := a.ctrl.CheckAuth(cmd.Context()); err != nil {
		return err
	}
	return printState(cmd.OutOrStdout(), a.ctrl.Snapshot())
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	a.ctrl.Logout(cmd.Context())
	_ = a.storage.Delete(keyPendingEmail)
	return printState(cmd.OutOrStdout(), a.ctrl.Snapshot())
}

func pendingEmail(cmd *cobra.Command, a *app) (string, error) {
	if email, _ := cmd.Flags().GetString("email"); email != "" {
		return email, nil
	}
	email, ok, err := a.storage.Get(keyPendingEmail)
	if err != nil {
		return "", fmt.Errorf("failed to read pending login: %w", err)
	}
	if !ok || email == "" {
		return "", errors.New("no pending login; run adminauthctl login first or pass --email")
	}
	return email, nil
}

func prompt(w io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// stateError prefers the message the controller would show on screen.
func stateError(s controller.State, err error) error {
	if s.Error != "" {
		return errors.New(s.Error)
	}
	return err
}

type stateOutput struct {
	View          string `json:"view"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
	PendingEmail  string `json:"pending_email,omitempty"`
}

func printState(w io.Writer, s controller.State) error {
	out := stateOutput{
		View:          s.View().String(),
		Authenticated: s.IsAuthenticated,
		PendingEmail:  s.TempEmail,
	}
	if s.User != nil {
		out.UserID = s.User.ID
		out.Email = s.User.Email
		out.Name = s.User.Name
		out.Role = string(s.User.Role)
	}
	if jsonOut {
		return printJSON(w, out)
	}

	if !out.Authenticated {
		fmt.Fprintln(w, "Not signed in")
		return nil
	}
	fmt.Fprintf(w, "Signed in as %s <%s> (%s, id %s)\n", out.Name, out.Email, out.Role, out.UserID)
	return nil
}
