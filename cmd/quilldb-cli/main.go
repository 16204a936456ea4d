package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/log"
	"github.com/quilldb/quilldb/pkg/query"
	"github.com/quilldb/quilldb/pkg/quilldb"
	"github.com/quilldb/quilldb/pkg/schema"
	"github.com/quilldb/quilldb/pkg/types"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "quilldb-cli",
	Short:   "quilldb-cli - inspect and script a quilldb .db file",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("quilldb-cli version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("db", "quilldb.db", "Path to the .db file")
	rootCmd.PersistentFlags().String("table", "documents", "Table to operate on")
	rootCmd.PersistentFlags().String("passphrase", "", "Passphrase used to derive the encryption key, if the table has sensitive columns")
	rootCmd.PersistentFlags().String("key-hex", "", "Raw encryption key, hex-encoded, as an alternative to --passphrase")
	rootCmd.PersistentFlags().StringP("schema-file", "f", "", "Declarative schema YAML file to apply instead of the built-in single-table schema")

	cobra.OnInitialize(initLogging)

	searchCmd.Flags().Int("limit", 10, "Maximum number of hits to return")
	rotateKeyCmd.Flags().String("new-key-hex", "", "New raw encryption key, hex-encoded (required)")
	rotateKeyCmd.MarkFlagRequired("new-key-hex")

	rootCmd.AddCommand(openCmd, getCmd, searchCmd, statsCmd, rotateKeyCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// documentsTable is the CLI's fixed schema: one free-form document table,
// the same role cmd/warren plays against a single, already-known cluster
// store rather than an arbitrary one — a real embedding application
// defines its own schema in code and does not go through this CLI.
func documentsTable(name string) schema.Schema {
	return schema.Schema{name: quilldb.MemoryTable(name, 0)}
}

func openDB(cmd *cobra.Command) (*quilldb.DB, string, error) {
	path, _ := cmd.Flags().GetString("db")
	table, _ := cmd.Flags().GetString("table")
	passphrase, _ := cmd.Flags().GetString("passphrase")
	keyHex, _ := cmd.Flags().GetString("key-hex")
	schemaFile, _ := cmd.Flags().GetString("schema-file")

	sch := documentsTable(table)
	if schemaFile != "" {
		data, err := os.ReadFile(schemaFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", schemaFile, err)
		}
		sch, err = schema.FromYAML(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", schemaFile, err)
		}
	}

	cfg := quilldb.Config{
		Path:       path,
		Version:    1,
		Schema:     sch,
		Passphrase: passphrase,
	}
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, "", fmt.Errorf("invalid --key-hex: %w", err)
		}
		cfg.EncryptionKey = key
	}

	db, err := quilldb.Open(context.Background(), cfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, table, nil
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the database and report its lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())
		fmt.Printf("state: %s\n", db.State())
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Fetch one row by primary key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, table, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		row, err := db.Get(context.Background(), table, args[0])
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}
		return printRow(row)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Run full-text search against --table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, table, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		limit, _ := cmd.Flags().GetInt("limit")
		hits, err := db.Search(context.Background(), table, args[0], query.SearchOptions{Limit: limit})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(hits) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, h := range hits {
			fmt.Printf("%-12.4f ", h.Score)
			if err := printRow(h.Row); err != nil {
				return err
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index sizes, cache accounting, and sync adapter states",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		stats := db.GetStats()
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Rotate the active encryption key and rewrite every sensitive row under it",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		newKeyHex, _ := cmd.Flags().GetString("new-key-hex")
		newKey, err := hex.DecodeString(newKeyHex)
		if err != nil {
			return fmt.Errorf("invalid --new-key-hex: %w", err)
		}

		if err := db.RotateEncryptionKey(context.Background(), newKey); err != nil {
			return fmt.Errorf("rotation failed: %w", err)
		}
		fmt.Println("rotation complete")
		return nil
	},
}

func printRow(row types.Row) error {
	plain := make(map[string]json.RawMessage, len(row))
	for col, v := range row {
		raw, err := codec.EncodeValue(v)
		if err != nil {
			return err
		}
		plain[col] = raw
	}
	out, err := json.Marshal(plain)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
