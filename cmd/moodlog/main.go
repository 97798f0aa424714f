package main

import (
	"fmt"
	"os"
	"sort"
	"syscall"

	"moodlog-go/internal/app"
	"moodlog-go/internal/config"
	"moodlog-go/internal/model"
	"moodlog-go/internal/moodlog"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	// Optional .env in the working directory for AWS credentials and
	// MOODLOG_* overrides.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a MoodApp. The caller must defer
// a.Close(). operation identifies the CLI command being run.
func newApp(cmd *cobra.Command, operation string) (*app.MoodApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewMoodApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(raw), nil
}

var rootCmd = &cobra.Command{
	Use:   "moodlog",
	Short: "Mood journal with friends",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			userID = uuid.New().String()
		}

		cfg := config.NewConfig(userID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("User ID:  %s\n", userID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("User ID:     %s\n", cfg.UserID)
		fmt.Printf("Timezone:    %s\n", cfg.Timezone)
		fmt.Printf("Window Days: %d\n", cfg.Window())
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Store:       %s\n", cfg.Store.Type)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate export encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		passphrase, err := readPassphrase("Passphrase for new key: ")
		if err != nil {
			return err
		}

		if err := a.Encryptor().Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log [MOOD]",
	Short: "Record today's mood",
	Long:  "Record a mood for today (or --date). MOOD is one of: great, good, okay, low, bad.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		note, _ := cmd.Flags().GetString("note")

		a, err := newApp(cmd, "SaveEntry")
		if err != nil {
			return err
		}
		defer a.Close()

		moodSet := len(args) > 0
		mood := ""
		if moodSet {
			mood = args[0]
		}
		noteSet := cmd.Flags().Changed("note")

		streak, err := a.SaveEntry(cmd.Context(), date, mood, note, moodSet, noteSet)
		if err != nil {
			return err
		}

		fmt.Println("Saved.")
		if streak.Count > 0 {
			fmt.Printf("Streak: %d day(s)\n", streak.Count)
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a mood entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		a, err := newApp(cmd, "DeleteEntry")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteEntry(cmd.Context(), date); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

// window command
var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "View recent mood entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Window")
		if err != nil {
			return err
		}
		defer a.Close()

		snap := a.Service().Window()
		if snap.Degraded {
			fmt.Fprintln(os.Stderr, "warning: live updates degraded, showing last known data")
		}

		if len(snap.Entries) == 0 {
			fmt.Println("No entries in the current window.")
			return nil
		}

		keys := make([]moodlog.DateKey, 0, len(snap.Entries))
		for k := range snap.Entries {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

		for _, k := range keys {
			e := snap.Entries[k]
			line := fmt.Sprintf("%s  %-6s", k, e.Mood)
			if e.Note != "" {
				line += "  " + e.Note
			}
			fmt.Println(line)
		}
		return nil
	},
}

// social command
var socialCmd = &cobra.Command{
	Use:   "social",
	Short: "View friends' moods for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		a, err := newApp(cmd, "Social")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Social(cmd.Context(), date)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n\n", snap.Date)
		if snap.SelfEntry != nil {
			fmt.Printf("you: %s", snap.SelfEntry.Mood)
			if snap.SelfEntry.Note != "" {
				fmt.Printf("  %s", snap.SelfEntry.Note)
			}
			fmt.Println()
		} else {
			fmt.Println("you: (no entry)")
		}

		for _, f := range snap.Friends {
			name := f.DisplayName
			if name == "" {
				name = f.FriendID
			}
			if !f.Found {
				fmt.Printf("%s: (no entry)\n", name)
				continue
			}
			fmt.Printf("%s: %s", name, f.Mood)
			if f.Note != "" {
				fmt.Printf("  %s", f.Note)
			}
			fmt.Println()
		}
		return nil
	},
}

// streak command
var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "View current streak",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Streak")
		if err != nil {
			return err
		}
		defer a.Close()

		st, lost, err := a.Service().Streak(cmd.Context())
		if err != nil {
			return err
		}

		if lost {
			fmt.Println("Streak lost. Log a mood today to start a new one.")
			return nil
		}
		if st.Count == 0 {
			fmt.Println("No streak yet. Log a mood to start one.")
			return nil
		}
		fmt.Printf("Streak: %d day(s), last entry %s\n", st.Count, st.LastEntryDate)
		return nil
	},
}

// friend command
var friendCmd = &cobra.Command{
	Use:   "friend",
	Short: "Manage friends",
}

var friendAddCmd = &cobra.Command{
	Use:   "add USER_ID",
	Short: "Add a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp(cmd, "AddFriend")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().AddFriend(cmd.Context(), args[0], name); err != nil {
			return err
		}
		fmt.Printf("Added friend %s\n", args[0])
		return nil
	},
}

var friendRemoveCmd = &cobra.Command{
	Use:   "remove USER_ID",
	Short: "Remove a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RemoveFriend")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().RemoveFriend(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed friend %s\n", args[0])
		return nil
	},
}

var friendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List friends",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Friends")
		if err != nil {
			return err
		}
		defer a.Close()

		friends, err := a.Service().Friends(cmd.Context())
		if err != nil {
			return err
		}

		if len(friends) == 0 {
			fmt.Println("No friends yet.")
			return nil
		}
		for _, f := range friends {
			if f.DisplayName != "" {
				fmt.Printf("%s  %s\n", f.FriendID, f.DisplayName)
			} else {
				fmt.Println(f.FriendID)
			}
		}
		return nil
	},
}

// profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		username, _ := cmd.Flags().GetString("username")
		if name == "" && username == "" {
			return fmt.Errorf("nothing to update: provide --name or --username")
		}

		a, err := newApp(cmd, "SetProfile")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().SetProfile(cmd.Context(), name, username); err != nil {
			return err
		}
		fmt.Println("Profile updated.")
		return nil
	},
}

// react command
var reactCmd = &cobra.Command{
	Use:   "react AUTHOR_ID EMOJI",
	Short: "React to a friend's entry",
	Long:  "React to a friend's entry for a day. Pass an empty EMOJI (\"\") to remove your reaction.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		a, err := newApp(cmd, "React")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.ParseDate(date)
		if err != nil {
			return err
		}

		if err := a.Service().React(cmd.Context(), args[0], key, args[1]); err != nil {
			return err
		}
		if args[1] == "" {
			fmt.Println("Reaction removed.")
		} else {
			fmt.Println("Reacted.")
		}
		return nil
	},
}

// reactions command
var reactionsCmd = &cobra.Command{
	Use:   "reactions AUTHOR_ID",
	Short: "List reactions on an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		a, err := newApp(cmd, "ListReactions")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.ParseDate(date)
		if err != nil {
			return err
		}

		reactions, err := a.Service().ListReactions(cmd.Context(), args[0], key)
		if err != nil {
			return err
		}

		if len(reactions) == 0 {
			fmt.Println("No reactions.")
			return nil
		}
		for _, r := range reactions {
			fmt.Printf("%s  %s\n", r.Emoji, r.ReactorID)
		}
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the journal to an archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		archiveName, _ := cmd.Flags().GetString("archive")

		a, err := newApp(cmd, "Export")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Export(cmd.Context(), archiveName)
		if err != nil {
			return err
		}
		fmt.Printf("Exported journal: %s\n", id)
		return nil
	},
}

var exportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		archiveName, _ := cmd.Flags().GetString("archive")

		a, err := newApp(cmd, "ListExports")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archive(cmd.Context(), archiveName)
		if err != nil {
			return err
		}

		ids, err := arch.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No exports.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var exportShowCmd = &cobra.Command{
	Use:   "show EXPORT_ID",
	Short: "Decrypt and display an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archiveName, _ := cmd.Flags().GetString("archive")

		a, err := newApp(cmd, "ShowExport")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archive(cmd.Context(), archiveName)
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		dec, err := a.Encryptor().Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking key: %w", err)
		}

		manifest, err := moodlog.ReadExport(arch, dec, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Export %s for %s at %s\n\n",
			manifest.ID, manifest.UserID, manifest.ExportedAt.Format("2006-01-02 15:04:05"))
		for _, e := range manifest.Entries {
			printEntry(e)
		}
		if manifest.Streak.Count > 0 {
			fmt.Printf("\nStreak: %d day(s), last entry %s\n",
				manifest.Streak.Count, manifest.Streak.LastEntryDate)
		}
		return nil
	},
}

func printEntry(e model.MoodEntry) {
	line := fmt.Sprintf("%s  %-6s", e.Key, e.Mood)
	if e.Note != "" {
		line += "  " + e.Note
	}
	fmt.Println(line)
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("user", "", "Use a fixed user id instead of generating one")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// friend subcommands
	friendCmd.AddCommand(friendAddCmd)
	friendAddCmd.Flags().String("name", "", "Display name for the friend")
	friendCmd.AddCommand(friendRemoveCmd)
	friendCmd.AddCommand(friendListCmd)

	// export subcommands
	exportCmd.Flags().String("archive", "", "Archive name (default: first configured)")
	exportCmd.AddCommand(exportListCmd)
	exportListCmd.Flags().String("archive", "", "Archive name (default: first configured)")
	exportCmd.AddCommand(exportShowCmd)
	exportShowCmd.Flags().String("archive", "", "Archive name (default: first configured)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	logCmd.Flags().String("note", "", "Free-form note for the day")
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	rootCmd.AddCommand(windowCmd)
	rootCmd.AddCommand(socialCmd)
	socialCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	rootCmd.AddCommand(streakCmd)
	rootCmd.AddCommand(friendCmd)
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().String("name", "", "Display name")
	profileCmd.Flags().String("username", "", "Unique handle")
	rootCmd.AddCommand(reactCmd)
	reactCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	rootCmd.AddCommand(reactionsCmd)
	reactionsCmd.Flags().String("date", "", "Date (YYYY-MM-DD), defaults to today")
	rootCmd.AddCommand(exportCmd)
}
