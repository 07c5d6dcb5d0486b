package main

import (
	"fmt"
	"os"
	"strings"

	"tcprefs-go/internal/app"
	"tcprefs-go/internal/config"
	"tcprefs-go/internal/database"
	"tcprefs-go/internal/model"
	"tcprefs-go/internal/secrets"
	"tcprefs-go/internal/tc"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "tcprefs",
	Short: "Teamcenter preference tracker",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		cipher := secrets.NewAgeCipher(cfg.Secrets, nil)
		if !cipher.IsConfigured() {
			passphrase, err := readPassword("New key passphrase: ")
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			confirm, err := readPassword("Confirm key passphrase: ")
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}

			if err := cipher.Setup(passphrase); err != nil {
				return fmt.Errorf("failed to generate encryption keys: %w", err)
			}
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer store.Close()
		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Secrets:     %s\n", cfg.Secrets.Type)
		fmt.Printf("Batch Size:  %d\n", cfg.Import.BatchSize)
		fmt.Printf("Parallelism: %d\n", cfg.Compare.MaxParallel)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		store, err := database.NewStoreFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("creating store: %w", err)
		}
		defer store.Close()

		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// connection command
var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Manage Teamcenter connections",
}

var connectionAddCmd = &cobra.Command{
	Use:   "add NAME URL",
	Short: "Register a new connection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		username, _ := cmd.Flags().GetString("username")

		password, err := readPassword("Password: ")
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().AddConnection(args[0], args[1], description, username, password)
		if err != nil {
			return fmt.Errorf("adding connection: %w", err)
		}

		fmt.Printf("Added connection %s (%s)\n", c.Name, c.ID)
		return nil
	},
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		conns, err := a.Service().Store().ListConnections()
		if err != nil {
			return err
		}

		if len(conns) == 0 {
			fmt.Println("No connections registered.")
			return nil
		}

		for _, c := range conns {
			lastRun := "never"
			if c.LastImportCompletedAt != nil {
				lastRun = c.LastImportCompletedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-20s  %-40s  last import: %s\n", c.Name, c.URL, lastRun)
		}
		return nil
	},
}

var connectionRemoveCmd = &cobra.Command{
	Use:   "remove CONNECTION",
	Short: "Remove a connection and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}
		if err := a.Service().RemoveConnection(c.ID); err != nil {
			return err
		}

		fmt.Printf("Removed connection %s\n", c.Name)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import CONNECTION",
	Short: "Import all preferences from a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}

		n, err := a.Service().ImportAll(cmd.Context(), c, a.BatchSize())
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Imported %d preference(s) from %s\n", n, c.Name)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status CONNECTION",
	Short: "Show preferences with their change status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		only, _ := cmd.Flags().GetString("only")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}

		statuses, err := a.Service().ListWithStatus(c)
		if err != nil {
			return err
		}

		shown := 0
		for _, ps := range statuses {
			if only != "" && !strings.EqualFold(ps.Status.String(), only) {
				continue
			}
			if !matchesFilter(ps.Preference, filter) {
				continue
			}
			fmt.Printf("%-8s  %-50s  %s\n", ps.Status, ps.Preference.Name, ps.Preference.Category)
			shown++
		}

		if shown == 0 {
			fmt.Println("No preferences match.")
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history CONNECTION NAME",
	Short: "Show the revision history of a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}

		revs, err := a.Service().Revisions(model.PreferenceKey(c.ID, args[1]))
		if err != nil {
			return err
		}
		if len(revs) == 0 {
			fmt.Println("No revisions recorded.")
			return nil
		}

		for _, r := range revs {
			values := "(no values)"
			if r.Values != nil {
				values = strings.Join(r.Values, ", ")
			}
			fmt.Printf("%s  %s  %s\n", r.ID, r.CapturedAt.Format("2006-01-02 15:04:05"), values)
		}
		return nil
	},
}

// comment command
var commentCmd = &cobra.Command{
	Use:   "comment CONNECTION NAME [TEXT]",
	Short: "Set or clear the comment on a preference",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}

		key := model.PreferenceKey(c.ID, args[1])
		var comment *string
		if len(args) == 3 && args[2] != "" {
			comment = &args[2]
		}
		if err := a.Service().SetComment(key, comment); err != nil {
			return err
		}

		if comment == nil {
			fmt.Printf("Cleared comment on %s\n", args[1])
		} else {
			fmt.Printf("Set comment on %s\n", args[1])
		}
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export CONNECTION [NAME...]",
	Short: "Export preferences as Teamcenter XML",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		collection, _ := cmd.Flags().GetString("collection")
		revisionID, _ := cmd.Flags().GetString("revision")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.Service()
		c, err := svc.ResolveConnection(args[0])
		if err != nil {
			return err
		}

		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if revisionID != "" {
			if len(args) != 2 {
				return fmt.Errorf("--revision requires exactly one preference name")
			}
			key := model.PreferenceKey(c.ID, args[1])
			pref, err := svc.Store().GetPreference(key)
			if err != nil {
				return err
			}
			if pref == nil {
				return fmt.Errorf("unknown preference: %s", args[1])
			}
			revs, err := svc.Revisions(key)
			if err != nil {
				return err
			}
			for _, r := range revs {
				if r.ID == revisionID {
					return svc.WriteRevisionXML(w, pref, r)
				}
			}
			return fmt.Errorf("unknown revision: %s", revisionID)
		}

		prefs, err := collectExportSet(svc, c, args[1:], collection)
		if err != nil {
			return err
		}
		if len(prefs) == 0 {
			return fmt.Errorf("nothing to export")
		}
		return svc.WritePreferencesXML(w, prefs)
	},
}

// collectExportSet resolves the preferences to export: an explicit name list,
// a collection's members, or every preference of the connection.
func collectExportSet(svc *tc.Service, c *model.Connection, names []string, collection string) ([]*model.Preference, error) {
	if collection != "" {
		return svc.Store().ListCollectionMembers(model.CollectionKey(c.ID, collection))
	}
	if len(names) == 0 {
		return svc.Store().ListPreferences(c.ID)
	}

	prefs := make([]*model.Preference, 0, len(names))
	for _, name := range names {
		p, err := svc.Store().FindPreferenceByName(c.ID, name)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("unknown preference: %s", name)
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}

// compare command
var compareCmd = &cobra.Command{
	Use:   "compare PRIMARY SECONDARY...",
	Short: "Compare preference values across connections",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fresh, _ := cmd.Flags().GetBool("fresh")
		diffOnly, _ := cmd.Flags().GetBool("diff-only")
		filter, _ := cmd.Flags().GetString("filter")
		collection, _ := cmd.Flags().GetString("collection")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		svc := a.Service()

		primary, err := svc.ResolveConnection(args[0])
		if err != nil {
			return err
		}
		secondaryIDs := make([]string, 0, len(args)-1)
		for _, arg := range args[1:] {
			c, err := svc.ResolveConnection(arg)
			if err != nil {
				return err
			}
			secondaryIDs = append(secondaryIDs, c.ID)
		}

		names, err := compareUniverse(svc, primary, collection)
		if err != nil {
			return err
		}

		comparison, err := svc.BuildComparison(primary.ID, secondaryIDs, names)
		if err != nil {
			return err
		}

		if fresh {
			svc.RefreshColumn(cmd.Context(), comparison.Primary, comparison.Names, a.BatchSize())
			svc.RefreshAllSecondary(cmd.Context(), comparison, a.MaxParallel(), a.BatchSize())
		}

		if comparison.Primary.Err != "" {
			fmt.Printf("! %s: %s\n", comparison.Primary.Connection.Name, comparison.Primary.Err)
		}
		for _, col := range comparison.Secondary {
			if col.Err != "" {
				fmt.Printf("! %s: %s\n", col.Connection.Name, col.Err)
			}
		}

		shown := 0
		for _, name := range comparison.Names {
			if diffOnly && !comparison.RowHasAnyDiff(name) {
				continue
			}
			if !svc.MatchesSearch(comparison, name, filter) {
				continue
			}

			cells := make([]string, 0, len(comparison.Secondary))
			p := comparison.Primary.Values[name]
			for _, col := range comparison.Secondary {
				cells = append(cells, tc.ClassifyRow(p, col.Values[name]).String())
			}
			fmt.Printf("%-50s  %s\n", name, strings.Join(cells, "  "))
			shown++
		}

		if shown == 0 {
			fmt.Println("No differences.")
		}
		return nil
	},
}

// compareUniverse picks the name universe for a comparison: a collection's
// members, or every preference stored for the primary connection.
func compareUniverse(svc *tc.Service, primary *model.Connection, collection string) ([]string, error) {
	if collection != "" {
		members, err := svc.Store().ListCollectionMembers(model.CollectionKey(primary.ID, collection))
		if err != nil {
			return nil, err
		}
		names := make([]string, len(members))
		for i, p := range members {
			names[i] = p.Name
		}
		return names, nil
	}

	prefs, err := svc.Store().ListPreferences(primary.ID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(prefs))
	for i, p := range prefs {
		names[i] = p.Name
	}
	return names, nil
}

// collection command
var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage preference collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create CONNECTION NAME",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}
		col, err := a.Service().CreateCollection(c.ID, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Collection %s ready\n", col.Name)
		return nil
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list CONNECTION",
	Short: "List collections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}
		cols, err := a.Service().Store().ListCollections(c.ID)
		if err != nil {
			return err
		}

		if len(cols) == 0 {
			fmt.Println("No collections.")
			return nil
		}
		for _, col := range cols {
			n, err := a.Service().Store().CountCollectionMembers(col.Key)
			if err != nil {
				return err
			}
			fmt.Printf("%-30s  %d member(s)\n", col.Name, n)
		}
		return nil
	},
}

var collectionAssignCmd = &cobra.Command{
	Use:   "assign CONNECTION COLLECTION NAME...",
	Short: "Add preferences to a collection",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(args)-2)
		for _, name := range args[2:] {
			keys = append(keys, model.PreferenceKey(c.ID, name))
		}
		if err := a.Service().AssignToCollection(keys, model.CollectionKey(c.ID, args[1])); err != nil {
			return err
		}

		fmt.Printf("Assigned %d preference(s) to %s\n", len(keys), args[1])
		return nil
	},
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove CONNECTION COLLECTION NAME...",
	Short: "Remove preferences from a collection",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(args)-2)
		for _, name := range args[2:] {
			keys = append(keys, model.PreferenceKey(c.ID, name))
		}
		if err := a.Service().RemoveFromCollection(keys, model.CollectionKey(c.ID, args[1])); err != nil {
			return err
		}

		fmt.Printf("Removed %d preference(s) from %s\n", len(keys), args[1])
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete CONNECTION COLLECTION",
	Short: "Delete an empty collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Service().ResolveConnection(args[0])
		if err != nil {
			return err
		}
		if err := a.Service().DeleteCollection(model.CollectionKey(c.ID, args[1])); err != nil {
			return err
		}

		fmt.Printf("Deleted collection %s\n", args[1])
		return nil
	},
}

// readPassword prompts on the terminal without echo; when stdin is not a
// terminal (scripts, tests) it falls back to reading one line.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", err
	}
	return line, nil
}

// matchesFilter applies the free-text token filter used by the status listing.
func matchesFilter(p *model.Preference, filter string) bool {
	raw := strings.TrimSpace(filter)
	if raw == "" {
		return true
	}
	haystack := p.Name + " " + p.Category + " " + strings.Join(p.Values, " ")
	if p.Comment != nil {
		haystack += " " + *p.Comment
	}
	haystack = strings.ToLower(haystack)
	for _, tok := range strings.Fields(strings.ToLower(raw)) {
		if !strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	connectionCmd.AddCommand(connectionAddCmd)
	connectionAddCmd.Flags().StringP("description", "d", "", "Connection description")
	connectionAddCmd.Flags().StringP("username", "u", "", "Teamcenter username")
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionRemoveCmd)

	statusCmd.Flags().String("filter", "", "Free-text filter (all tokens must match)")
	statusCmd.Flags().String("only", "", "Show only one status (New, Changed, Stable, Missing, Unknown)")

	exportCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().String("collection", "", "Export the members of a collection")
	exportCmd.Flags().String("revision", "", "Export a single historical revision by ID")

	compareCmd.Flags().Bool("fresh", false, "Re-import every compared connection before comparing")
	compareCmd.Flags().Bool("diff-only", false, "Show only rows that differ somewhere")
	compareCmd.Flags().String("filter", "", "Free-text filter (all tokens must match)")
	compareCmd.Flags().String("collection", "", "Compare only the members of a primary collection")

	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionAssignCmd)
	collectionCmd.AddCommand(collectionRemoveCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(connectionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(collectionCmd)
}
