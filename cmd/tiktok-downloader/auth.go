package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yunstech/tiktok-downloader/pkg/auth"
	"github.com/yunstech/tiktok-downloader/pkg/tiktok"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage TikTok session cookies",
	Long: `Manage stored TikTok session cookies securely.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your session cookie or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [label]",
	Short: "Store a TikTok session cookie securely",
	Long: `Store a TikTok session cookie in the system keychain or an encrypted
file. The label defaults to "default", which is the session the scraper
uses when none is named.

To get your cookie:
1. Log into TikTok in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies > https://www.tiktok.com
4. Copy the sessionid value, or the whole Cookie header from any request`,
	Example: `  # Store the default session
  tiktok-downloader auth login

  # Store a labelled session
  tiktok-downloader auth login work-account`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout [label]",
	Short:   "Remove a stored session",
	Args:    cobra.MaximumNArgs(1),
	Example: `  tiktok-downloader auth logout work-account`,
	RunE:    runLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Long:  `List all stored TikTok sessions with the cookie values masked.`,
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	label := auth.DefaultLabel
	if len(args) > 0 {
		label = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(label); existing != nil {
		fmt.Printf("Session %q already exists. Overwrite? (y/N): ", label)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("Paste your cookie value (it will be hidden as you type):")
	fmt.Print("cookie: ")
	cookie, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read cookie: %w", err)
	}
	if cookie == "" {
		return fmt.Errorf("cookie is required")
	}

	parsed := tiktok.ParseCookie(cookie)
	if missing := tiktok.MissingImportantCookies(parsed); len(missing) > 0 {
		fmt.Printf("\nNote: the cookie is missing %s. Scraping may still work but is more likely to be blocked.\n",
			strings.Join(missing, ", "))
	}

	fmt.Print("\nUser Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	session := &auth.Session{
		Label:        label,
		Cookie:       cookie,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}
	if err := manager.Store(session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	fmt.Printf("\nSession stored: %s\n", label)
	fmt.Println("\nDownload a creator's catalog with:")
	fmt.Println("  tiktok-downloader scrape <username>")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	label := auth.DefaultLabel
	if len(args) > 0 {
		label = args[0]
	}

	if err := manager.Delete(label); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	fmt.Printf("Session removed: %s\n", label)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	sessions, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions. Use 'tiktok-downloader auth login' to add one.")
		return nil
	}

	fmt.Println("Stored sessions:")
	for i, session := range sessions {
		sanitized := auth.SanitizeSession(session)
		fmt.Printf("%d. Label: %s\n", i+1, sanitized.Label)
		fmt.Printf("   Cookie: %s\n", sanitized.Cookie)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

// readSecret reads a value from stdin without echoing.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
