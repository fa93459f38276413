package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions <user-id>",
	Short: "List a user's active sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessions,
}

var revokeAllCmd = &cobra.Command{
	Use:   "revoke-all <user-id>",
	Short: "Revoke every session of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevokeAll,
}

var lockStatusCmd = &cobra.Command{
	Use:   "lock-status <email>",
	Short: "Show the login limiter state for an email",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockStatus,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <email>",
	Short: "Clear the login lockout of an email",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlock,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired limiter, OTP and session entries once",
	RunE:  runSweep,
}

var passwordCheckCmd = &cobra.Command{
	Use:   "password-check <password>",
	Short: "Check a password against the configured policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswordCheck,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(revokeAllCmd)
	rootCmd.AddCommand(lockStatusCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(passwordCheckCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.engine.ListSessions(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		type row struct {
			Token        string    `json:"token"`
			CreatedAt    time.Time `json:"created_at"`
			LastActivity time.Time `json:"last_activity"`
			ExpiresAt    time.Time `json:"expires_at"`
			IPAddress    string    `json:"ip_address,omitempty"`
			UserAgent    string    `json:"user_agent,omitempty"`
		}
		rows := make([]row, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, row{
				Token:        truncate(s.Token, 12),
				CreatedAt:    s.CreatedAt,
				LastActivity: s.LastActivity,
				ExpiresAt:    s.ExpiresAt,
				IPAddress:    s.IPAddress,
				UserAgent:    s.UserAgent,
			})
		}
		return printJSON(w, map[string]any{
			"sessions": rows,
			"count":    len(rows),
		})
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No active sessions")
		return nil
	}

	t := newTable(w)
	printTableHeader(t, "TOKEN", "CREATED", "LAST ACTIVITY", "EXPIRES")
	for _, s := range sessions {
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\n",
			truncate(s.Token, 12),
			s.CreatedAt.Format(time.RFC3339),
			s.LastActivity.Format(time.RFC3339),
			s.ExpiresAt.Format(time.RFC3339),
		)
	}
	return t.Flush()
}

func runRevokeAll(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.engine.RevokeAllSessions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), map[string]any{"revoked": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d session(s)\n", n)
	return nil
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	locked, retryAfter, remaining, err := a.engine.LockStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"locked":              locked,
			"retry_after_seconds": int(retryAfter.Seconds()),
			"remaining_attempts":  remaining,
		})
	}
	if locked {
		fmt.Fprintf(cmd.OutOrStdout(), "Locked, retry in %s\n", retryAfter.Round(time.Second))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Not locked, %d attempt(s) left\n", remaining)
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.engine.Unlock(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", args[0])
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.engine.SweepOnce(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), map[string]int{
			"rate_limits": r.RateLimits,
			"sessions":    r.Sessions,
			"otps":        r.OTPs,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d rate limit, %d session and %d OTP entries\n",
		r.RateLimits, r.Sessions, r.OTPs)
	return nil
}

func runPasswordCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	res := a.engine.ValidatePassword(args[0])
	score, label := a.engine.PasswordStrength(args[0])

	w := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(w, map[string]any{
			"valid":    res.Valid,
			"errors":   res.Errors,
			"strength": res.Strength,
			"score":    score,
			"label":    label,
		})
	}
	fmt.Fprintf(w, "Strength: %s (%d, %s)\n", res.Strength, score, label)
	if res.Valid {
		fmt.Fprintln(w, "Password meets the policy")
		return nil
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	return fmt.Errorf("password does not meet the policy")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
