// Package main implements the stratum binary: snapshot, diff, plan, and
// rollback operations over the schema graph.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/diff"
	"github.com/stratumdb/stratum/internal/engine"
	"github.com/stratumdb/stratum/internal/introspect"
	"github.com/stratumdb/stratum/internal/model"
	"github.com/stratumdb/stratum/internal/storage"
	"github.com/stratumdb/stratum/internal/store"
	"github.com/stratumdb/stratum/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Stratum - Content-Addressed Schema Evolution\n\n")
	fmt.Fprintf(os.Stderr, "Usage: stratum <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  snapshot      Build and store a snapshot from an entity definitions file\n")
	fmt.Fprintf(os.Stderr, "  transition    Create a transition between two stored snapshots\n")
	fmt.Fprintf(os.Stderr, "  diff          Show the structural difference between two snapshots\n")
	fmt.Fprintf(os.Stderr, "  plan          Plan a deployment of an environment to a snapshot\n")
	fmt.Fprintf(os.Stderr, "  rollback      Plan a rollback of an environment to a snapshot\n")
	fmt.Fprintf(os.Stderr, "  mark-applied  Record that an environment now runs a snapshot\n")
	fmt.Fprintf(os.Stderr, "  log           List stored snapshots and transitions\n")
	fmt.Fprintf(os.Stderr, "  envs          List environment states\n")
	fmt.Fprintf(os.Stderr, "  verify        Replay a transition and check it reaches its target\n")
	fmt.Fprintf(os.Stderr, "  drift         Diff a live database against a snapshot\n")
	fmt.Fprintf(os.Stderr, "  version       Show version information\n")
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  STRATUM_DATA_DIR       Base directory for the manifest and payloads\n")
	fmt.Fprintf(os.Stderr, "  STRATUM_STORAGE_TYPE   Payload storage backend (local, s3)\n")
	fmt.Fprintf(os.Stderr, "  STRATUM_S3_BUCKET      Bucket for the s3 backend\n")
	fmt.Fprintf(os.Stderr, "  STRATUM_DB_DRIVER      Introspection driver (sqlite, postgres)\n")
	fmt.Fprintf(os.Stderr, "  STRATUM_DB_DSN         Introspection connection string\n")
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "snapshot":
		runSnapshot(args)
	case "transition":
		runTransition(args)
	case "diff":
		runDiff(args)
	case "plan":
		runPlan(args)
	case "rollback":
		runRollback(args)
	case "mark-applied":
		runMarkApplied(args)
	case "log":
		runLog(args)
	case "envs":
		runEnvs(args)
	case "verify":
		runVerify(args)
	case "drift":
		runDrift(args)
	case "version":
		fmt.Printf("stratum version %s (commit: %s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to configuration file (YAML or JSON)")
}

func loadConfig(configFile string) *config.Config {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	return cfg
}

func openStore(ctx context.Context, cfg *config.Config) *store.FileStore {
	var objects storage.ObjectStorage
	var err error

	switch cfg.Storage.Type {
	case "s3":
		objects, err = storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
	default:
		objects, err = storage.NewLocalStorage(cfg.Storage.Path)
	}
	if err != nil {
		log.Fatalf("Failed to open object storage: %v", err)
	}

	s, err := store.NewFileStore(cfg.ManifestPath(), objects)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func runSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	configFile := commonFlags(fs)
	file := fs.String("file", "", "Entity definitions file (defaults to config schema_file)")
	description := fs.String("m", "", "Snapshot description")
	parent := fs.String("parent", "", "Parent snapshot hash")
	fs.Parse(args)

	cfg := loadConfig(*configFile)
	schemaFile := *file
	if schemaFile == "" {
		schemaFile = cfg.SchemaFile
	}

	entities, err := model.LoadEntitiesFile(schemaFile)
	if err != nil {
		log.Fatalf("Failed to load entity definitions: %v", err)
	}

	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	eng := engine.New(s)
	snapshot, m, err := eng.CreateSnapshot(ctx, entities, types.SnapshotMetadata{
		CreatedBy:   cfg.CreatedBy,
		Description: *description,
		Parent:      *parent,
	})
	if err != nil {
		log.Fatalf("Failed to create snapshot: %v", err)
	}

	fmt.Printf("snapshot %s (%d tables)\n", snapshot.Hash, len(m.Tables))
}

func runTransition(args []string) {
	fs := flag.NewFlagSet("transition", flag.ExitOnError)
	configFile := commonFlags(fs)
	from := fs.String("from", "", "Source snapshot hash (empty for bootstrap)")
	to := fs.String("to", "", "Target snapshot hash")
	description := fs.String("m", "", "Transition description")
	fs.Parse(args)

	if *to == "" {
		log.Fatalf("transition requires -to")
	}

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	eng := engine.New(s)
	t, err := eng.CreateTransition(ctx, *from, *to, *description)
	if err != nil {
		log.Fatalf("Failed to create transition: %v", err)
	}

	fmt.Printf("transition %s (%d steps)\n", t.Hash, len(t.Steps))
	for _, step := range t.Steps {
		fmt.Printf("  %s\n", step)
	}
}

func runDiff(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	configFile := commonFlags(fs)
	from := fs.String("from", "", "Source snapshot hash (empty for the empty schema)")
	to := fs.String("to", "", "Target snapshot hash")
	asJSON := fs.Bool("json", false, "Emit the diff as JSON")
	fs.Parse(args)

	if *to == "" {
		log.Fatalf("diff requires -to")
	}

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	eng := engine.New(s)
	d, err := eng.Diff(ctx, *from, *to)
	if err != nil {
		log.Fatalf("Failed to diff: %v", err)
	}

	if *asJSON {
		printJSON(d)
		return
	}
	printDiff(d)
}

func runPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configFile := commonFlags(fs)
	env := fs.String("env", "", "Environment name")
	to := fs.String("to", "", "Target snapshot hash")
	asJSON := fs.Bool("json", false, "Emit the plan as JSON")
	fs.Parse(args)

	if *env == "" || *to == "" {
		log.Fatalf("plan requires -env and -to")
	}

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	eng := engine.New(s)
	plan, err := eng.PlanDeploy(ctx, *env, *to, nil)
	if err != nil {
		log.Fatalf("Failed to plan deployment: %v", err)
	}
	printPlan(plan, *asJSON)
}

func runRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	configFile := commonFlags(fs)
	env := fs.String("env", "", "Environment name")
	to := fs.String("to", "", "Target snapshot hash")
	asJSON := fs.Bool("json", false, "Emit the plan as JSON")
	fs.Parse(args)

	if *env == "" || *to == "" {
		log.Fatalf("rollback requires -env and -to")
	}

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	eng := engine.New(s)
	plan, err := eng.PlanRollback(ctx, *env, *to, nil)
	if err != nil {
		log.Fatalf("Failed to plan rollback: %v", err)
	}
	printPlan(plan, *asJSON)
}

func runMarkApplied(args []string) {
	fs := flag.NewFlagSet("mark-applied", flag.ExitOnError)
	configFile := commonFlags(fs)
	env := fs.String("env", "", "Environment name")
	hash := fs.String("snapshot", "", "Applied snapshot hash")
	fs.Parse(args)

	if *env == "" || *hash == "" {
		log.Fatalf("mark-applied requires -env and -snapshot")
	}

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	if err := engine.New(s).MarkApplied(ctx, *env, *hash); err != nil {
		log.Fatalf("Failed to mark applied: %v", err)
	}
	fmt.Printf("%s -> %s\n", *env, types.ShortHash(*hash))
}

func runLog(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	configFile := commonFlags(fs)
	fs.Parse(args)

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	snapshots, err := s.AllSnapshots(ctx)
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	transitions, err := s.AllTransitions(ctx)
	if err != nil {
		log.Fatalf("Failed to list transitions: %v", err)
	}

	fmt.Printf("snapshots (%d):\n", len(snapshots))
	for _, rec := range snapshots {
		fmt.Printf("  %s  %s  %s\n", types.ShortHash(rec.Hash),
			time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339), rec.Description)
	}
	fmt.Printf("transitions (%d):\n", len(transitions))
	for _, rec := range transitions {
		fmt.Printf("  %s  %s -> %s  (%d steps)  %s\n", types.ShortHash(rec.Hash),
			shortOrEmpty(rec.FromHash), types.ShortHash(rec.ToHash), rec.StepCount, rec.Description)
	}
}

func runEnvs(args []string) {
	fs := flag.NewFlagSet("envs", flag.ExitOnError)
	configFile := commonFlags(fs)
	fs.Parse(args)

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	states, err := s.AllStates(ctx)
	if err != nil {
		log.Fatalf("Failed to list environments: %v", err)
	}
	for _, state := range states {
		fmt.Printf("%s  %s  %s\n", state.Environment, shortOrEmpty(state.CurrentSnapshot),
			state.UpdatedAt.Format(time.RFC3339))
	}
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configFile := commonFlags(fs)
	hash := fs.String("transition", "", "Transition hash to verify (empty verifies all)")
	fs.Parse(args)

	cfg := loadConfig(*configFile)
	ctx := context.Background()
	s := openStore(ctx, cfg)
	defer s.Close()

	eng := engine.New(s)
	hashes := []string{*hash}
	if *hash == "" {
		records, err := s.AllTransitions(ctx)
		if err != nil {
			log.Fatalf("Failed to list transitions: %v", err)
		}
		hashes = hashes[:0]
		for _, rec := range records {
			hashes = append(hashes, rec.Hash)
		}
	}

	failed := 0
	for _, h := range hashes {
		if err := eng.Verify(ctx, h); err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", types.ShortHash(h), err)
			continue
		}
		fmt.Printf("ok   %s\n", types.ShortHash(h))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runDrift(args []string) {
	fs := flag.NewFlagSet("drift", flag.ExitOnError)
	configFile := commonFlags(fs)
	hash := fs.String("snapshot", "", "Snapshot hash the database should match")
	asJSON := fs.Bool("json", false, "Emit the diff as JSON")
	fs.Parse(args)

	if *hash == "" {
		log.Fatalf("drift requires -snapshot")
	}

	cfg := loadConfig(*configFile)
	ctx := context.Background()

	var inspector introspect.Introspector
	var err error
	switch cfg.Introspect.Driver {
	case "postgres":
		inspector, err = introspect.NewPostgresIntrospector(ctx, cfg.Introspect.DSN, cfg.Introspect.Schema)
	default:
		inspector, err = introspect.NewSQLiteIntrospector(cfg.Introspect.DSN)
	}
	if err != nil {
		log.Fatalf("Failed to connect for introspection: %v", err)
	}
	defer inspector.Close(ctx)

	live, err := inspector.ExtractModel(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to introspect database: %v", err)
	}

	s := openStore(ctx, cfg)
	defer s.Close()

	d, err := engine.New(s).Drift(ctx, *hash, live)
	if err != nil {
		log.Fatalf("Failed to compute drift: %v", err)
	}

	if d.Empty() {
		fmt.Printf("no drift: database matches %s\n", types.ShortHash(*hash))
		return
	}
	if *asJSON {
		printJSON(d)
		return
	}
	printDiff(d)
	os.Exit(1)
}

func printPlan(plan *engine.Plan, asJSON bool) {
	if asJSON {
		printJSON(plan)
		return
	}

	fmt.Printf("plan %s: %s -> %s  [%s]\n", plan.Environment,
		shortOrEmpty(plan.From), types.ShortHash(plan.To), plan.SafetyLabel)
	for _, t := range plan.Transitions {
		fmt.Printf("  transition %s (%d steps)\n", types.ShortHash(t.Hash), len(t.Steps))
		for _, step := range t.Steps {
			fmt.Printf("    %s\n", step)
		}
	}
	for _, reason := range plan.Reasons {
		fmt.Printf("  reason: %s\n", reason)
	}
	for _, hash := range plan.Regenerated {
		fmt.Printf("  regenerated: rollback of %s rebuilt from snapshot definitions\n", types.ShortHash(hash))
	}
	if plan.Impact.Downtime != "" && plan.Impact.Downtime != "none" {
		fmt.Printf("  estimated downtime: %s\n", plan.Impact.Downtime)
	}
	if plan.Impact.RequiresBackup {
		fmt.Printf("  WARNING: plan contains destructive steps, back up affected tables first\n")
	}
}

func printDiff(d *diff.Diff) {
	if d.Empty() {
		fmt.Println("no differences")
		return
	}
	for _, t := range d.TablesAdded {
		fmt.Printf("+ table %s (%d columns)\n", t.Name, len(t.Columns))
	}
	for _, name := range d.TablesRemoved {
		fmt.Printf("- table %s\n", name)
	}
	for _, td := range d.TablesChanged {
		fmt.Printf("~ table %s\n", td.Name)
		for _, c := range td.ColumnsAdded {
			fmt.Printf("  + column %s %s\n", c.Name, c.Type)
		}
		for _, name := range td.ColumnsRemoved {
			fmt.Printf("  - column %s\n", name)
		}
		for _, change := range td.ColumnsModified {
			fmt.Printf("  ~ column %s: %s -> %s\n", change.Name,
				describeColumn(change.From), describeColumn(change.To))
		}
		for _, ix := range td.IndexesAdded {
			fmt.Printf("  + index %s\n", ix.Name)
		}
		for _, name := range td.IndexesRemoved {
			fmt.Printf("  - index %s\n", name)
		}
		for _, fk := range td.ForeignKeysAdded {
			fmt.Printf("  + fk %s -> %s\n", fk.Name, fk.RefTable)
		}
		for _, name := range td.ForeignKeysRemoved {
			fmt.Printf("  - fk %s\n", name)
		}
	}
}

func describeColumn(c types.Column) string {
	s := c.Type
	if !c.Nullable {
		s += " not null"
	}
	if c.Default != nil {
		s += fmt.Sprintf(" default %s", *c.Default)
	}
	return s
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}

func shortOrEmpty(hash string) string {
	if hash == "" {
		return "(empty)"
	}
	return types.ShortHash(hash)
}
