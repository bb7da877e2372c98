// Package main provides the revq CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"revq/internal/config"
	"revq/internal/gitio"
	"revq/internal/repo"
	"revq/internal/revset"
	"revq/internal/store"
	"revq/internal/template"
)

const (
	revqDir    = ".revq"
	dbFile     = "revq.db"
	configFile = "config.yaml"
)

var rootCmd = &cobra.Command{
	Use:           "revq",
	Short:         "Revision-set query engine over versioned graphs",
	Long:          `revq stores a revision graph, ingests history from Git, and evaluates revset queries and output templates against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize revq in the current directory",
	RunE:  runInit,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <git-repo>",
	Short: "Ingest a Git repository's history into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show revisions selected by a revset query",
	RunE:  runLog,
}

var debugrevspecCmd = &cobra.Command{
	Use:   "debugrevspec <query>",
	Short: "Parse and evaluate a revset query, for debugging",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebugrevspec,
}

var debugtemplateCmd = &cobra.Command{
	Use:   "debugtemplate <template>",
	Short: "Parse and render a template, for debugging",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebugtemplate,
}

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "List configured revset aliases",
	RunE:  runAliases,
}

var (
	withAliases  bool
	logRev       string
	logTemplate  string
	optimizeFlag bool
	verifyFlag   bool
	noExpandFlag bool
	noOptFlag    bool
	debugRev     string
	treeFlag     bool

	// lastQuery remembers the text being parsed when an error surfaces,
	// for the caret diagram.
	lastQuery string
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&withAliases, "with-aliases", false, "Apply aliases even in plain mode")

	logCmd.Flags().StringVarP(&logRev, "rev", "r", "all()", "Revset query selecting revisions")
	logCmd.Flags().StringVarP(&logTemplate, "template", "T", "{rev}: {desc} ({user})\\n", "Output template")

	debugrevspecCmd.Flags().BoolVar(&optimizeFlag, "optimize", false, "Print the tree after optimization")
	debugrevspecCmd.Flags().BoolVar(&verifyFlag, "verify-optimized", false, "Verify the optimized result against the plain result")
	debugrevspecCmd.Flags().BoolVar(&noExpandFlag, "no-expand", false, "Skip alias expansion")
	debugrevspecCmd.Flags().BoolVar(&noOptFlag, "no-optimize", false, "Evaluate the analyzed tree as-is")

	debugtemplateCmd.Flags().StringVarP(&debugRev, "rev", "r", ".", "Revset query selecting revisions")
	debugtemplateCmd.Flags().BoolVar(&treeFlag, "tree", false, "Print the parsed template tree")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(debugrevspecCmd)
	rootCmd.AddCommand(debugtemplateCmd)
	rootCmd.AddCommand(aliasesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "revq: %v\n", err)
		var perr *revset.ParseError
		if errors.As(err, &perr) {
			if hint := perr.Hint(lastQuery); hint != "" {
				fmt.Fprintln(os.Stderr, hint)
			}
		}
		var terr *template.ParseError
		if errors.As(err, &terr) {
			if hint := terr.Hint(lastQuery); hint != "" {
				fmt.Fprintln(os.Stderr, hint)
			}
		}
		if revset.IsQueryError(err) || template.IsTemplateError(err) {
			os.Exit(255)
		}
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(revqDir, 0755); err != nil {
		return fmt.Errorf("creating .revq directory: %w", err)
	}

	configContent := `plain: false
aliases:
  unstable: "draft() and not obsolete()"
`
	cfgPath := filepath.Join(revqDir, configFile)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := os.WriteFile(cfgPath, []byte(configContent), 0644); err != nil {
			return fmt.Errorf("writing config.yaml: %w", err)
		}
	}

	s, err := store.Open(filepath.Join(revqDir, dbFile))
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Println("initialized empty revq store in " + revqDir)
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	gr, err := gitio.Open(args[0])
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := gitio.Ingest(gr, s)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d revisions\n", n)
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	m, eng, err := openEngine(revset.Options{})
	if err != nil {
		return err
	}

	lastQuery = logRev
	revs, err := eng.Revs(logRev)
	if err != nil {
		return err
	}

	lastQuery = logTemplate
	tmpl, err := template.Parse(logTemplate)
	if err != nil {
		return err
	}
	renderer := template.NewEngine(m, eng)
	for _, rev := range revs {
		out, err := renderer.Render(tmpl, rev)
		if err != nil {
			return err
		}
		fmt.Print(out)
	}
	return nil
}

func runDebugrevspec(cmd *cobra.Command, args []string) error {
	query := args[0]
	lastQuery = query

	opts := revset.Options{NoOptimize: noOptFlag}
	if noExpandFlag {
		// An empty table keeps the expansion stage as a no-op.
		opts.Aliases = revset.NewAliasTable(nil)
	}

	m, eng, err := openEngine(opts)
	if err != nil {
		return err
	}

	if optimizeFlag {
		tree, err := eng.Compile(query)
		if err != nil {
			return err
		}
		fmt.Println(tree)
	}

	revs, err := eng.Revs(query)
	if err != nil {
		return err
	}

	if verifyFlag {
		plainOpts := opts
		plainOpts.NoOptimize = true
		plain := revset.NewEngine(m, plainOpts)
		plainRevs, err := plain.Revs(query)
		if err != nil {
			return err
		}
		if !sameSet(revs, plainRevs) {
			return fmt.Errorf("optimized result %v differs from plain result %v", revs, plainRevs)
		}
	}

	for _, rev := range revs {
		fmt.Println(rev)
	}
	return nil
}

func runDebugtemplate(cmd *cobra.Command, args []string) error {
	text := args[0]
	lastQuery = text

	tmpl, err := template.Parse(text)
	if err != nil {
		return err
	}
	if treeFlag {
		fmt.Println(tmpl)
	}

	m, eng, err := openEngine(revset.Options{})
	if err != nil {
		return err
	}

	lastQuery = debugRev
	revs, err := eng.Revs(debugRev)
	if err != nil {
		return err
	}

	lastQuery = text
	renderer := template.NewEngine(m, eng)
	for _, rev := range revs {
		out, err := renderer.Render(tmpl, rev)
		if err != nil {
			return err
		}
		fmt.Print(out)
	}
	return nil
}

func runAliases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Aliases))
	for name := range cfg.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s = %s\n", name, cfg.Aliases[name])
	}

	if table := revset.NewAliasTable(cfg.Aliases); len(table.Warnings) > 0 {
		for _, w := range table.Warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(filepath.Join(revqDir, configFile))
}

func openStore() (*store.Store, error) {
	path := filepath.Join(revqDir, dbFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no revq store found, run 'revq init' first")
	}
	return store.Open(path)
}

// openEngine loads the store into memory and builds a query engine over
// it. The alias table comes from the session config unless opts already
// carries one.
func openEngine(opts revset.Options) (*repo.Memory, *revset.Engine, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()

	m, err := s.Load()
	if err != nil {
		return nil, nil, err
	}

	if opts.Aliases == nil {
		cfg, err := loadConfig()
		if err != nil {
			return nil, nil, err
		}
		opts.Aliases = cfg.AliasTable(withAliases)
	}
	return m, revset.NewEngine(m, opts), nil
}

func sameSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]bool, len(a))
	for _, rev := range a {
		seen[rev] = true
	}
	for _, rev := range b {
		if !seen[rev] {
			return false
		}
	}
	return true
}
