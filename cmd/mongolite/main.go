// Command mongolite is a thin CLI around the mongolite package: insert,
// find, update, delete and watch documents in a SQLite-backed
// collection without writing any Go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/madhouselabs/mongolite"
	"github.com/madhouselabs/mongolite/internal/config"
	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "mongolite",
		Short: "mongolite CLI - interact with a mongolite document database",
		Long:  `A CLI tool for inserting, querying, updating, deleting and watching documents in a mongolite database file.`,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./mongolite.db", "path to the SQLite database file")

	rootCmd.AddCommand(
		newInsertCmd(),
		newFindCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newWatchCmd(),
		newCreateIndexCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("mongolite: %v", err)
	}
}

func openDatabase(ctx context.Context) (*mongolite.Database, error) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Path:        dbPath,
			BusyTimeout: 5 * time.Second,
		},
		ChangeStream: config.ChangeStreamConfig{
			PollInterval:  100 * time.Millisecond,
			BatchSize:     256,
			QueueCapacity: 1024,
		},
	}
	return mongolite.Connect(ctx, cfg)
}

func parseDocumentArg(raw string) (mongolite.Document, error) {
	if raw == "" {
		return mongolite.Document{}, nil
	}
	var doc mongolite.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return doc, nil
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(b))
}

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert [collection] [document-json]",
		Short: "Insert one document into a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			doc, err := parseDocumentArg(args[1])
			if err != nil {
				return err
			}

			coll, err := db.Collection(ctx, args[0])
			if err != nil {
				return err
			}

			id, err := coll.InsertOne(ctx, doc)
			if err != nil {
				return err
			}
			printJSON(map[string]string{"insertedId": id})
			return nil
		},
	}
}

func newFindCmd() *cobra.Command {
	var filterArg, sortArg, projectionArg string
	var limit, skip int64

	cmd := &cobra.Command{
		Use:   "find [collection]",
		Short: "Find documents in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			filter, err := parseDocumentArg(filterArg)
			if err != nil {
				return err
			}

			coll, err := db.Collection(ctx, args[0])
			if err != nil {
				return err
			}

			cursor := coll.Find(filter)
			if sortArg != "" {
				var sortSpec map[string]int
				if err := json.Unmarshal([]byte(sortArg), &sortSpec); err != nil {
					return fmt.Errorf("invalid --sort JSON: %w", err)
				}
				for path, dir := range sortSpec {
					cursor = cursor.Sort(path, dir)
				}
			}
			if projectionArg != "" {
				projection, err := parseDocumentArg(projectionArg)
				if err != nil {
					return err
				}
				cursor = cursor.Project(projection)
			}
			if skip > 0 {
				cursor = cursor.Skip(skip)
			}
			if limit > 0 {
				cursor = cursor.Limit(limit)
			}

			docs, err := cursor.ToArray(ctx)
			if err != nil {
				return err
			}
			printJSON(docs)
			return nil
		},
	}
	cmd.Flags().StringVar(&filterArg, "filter", "{}", "filter document as JSON")
	cmd.Flags().StringVar(&sortArg, "sort", "", `sort spec as JSON, e.g. {"age":1}`)
	cmd.Flags().StringVar(&projectionArg, "projection", "", "projection document as JSON")
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum documents to return")
	cmd.Flags().Int64Var(&skip, "skip", 0, "documents to skip")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var many, upsert bool
	cmd := &cobra.Command{
		Use:   "update [collection] [filter-json] [update-json]",
		Short: "Update documents matching a filter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			filter, err := parseDocumentArg(args[1])
			if err != nil {
				return err
			}
			update, err := parseDocumentArg(args[2])
			if err != nil {
				return err
			}

			coll, err := db.Collection(ctx, args[0])
			if err != nil {
				return err
			}

			opts := mongolite.UpdateOptions{Upsert: upsert}
			var result *mongolite.UpdateResult
			if many {
				result, err = coll.UpdateMany(ctx, filter, update, opts)
			} else {
				result, err = coll.UpdateOne(ctx, filter, update, opts)
			}
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&many, "many", false, "update every matching document instead of just the first")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "insert a document synthesised from the filter and update if nothing matches")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var many bool
	cmd := &cobra.Command{
		Use:   "delete [collection] [filter-json]",
		Short: "Delete documents matching a filter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			filter, err := parseDocumentArg(args[1])
			if err != nil {
				return err
			}

			coll, err := db.Collection(ctx, args[0])
			if err != nil {
				return err
			}

			var result *mongolite.DeleteResult
			if many {
				result, err = coll.DeleteMany(ctx, filter)
			} else {
				result, err = coll.DeleteOne(ctx, filter)
			}
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&many, "many", false, "delete every matching document instead of just the first")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var fullDocument bool
	cmd := &cobra.Command{
		Use:   "watch [collection]",
		Short: "Stream change events from a collection, or the whole database if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			opts := mongolite.WatchOptions{FullDocument: fullDocument}

			var sub *mongolite.Subscription
			if len(args) == 1 {
				coll, err := db.Collection(ctx, args[0])
				if err != nil {
					return err
				}
				sub, err = coll.Watch(ctx, opts)
				if err != nil {
					return err
				}
			} else {
				sub, err = db.Watch(ctx, opts)
				if err != nil {
					return err
				}
			}
			defer sub.Close()

			for {
				ev, err := sub.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				printJSON(ev)
			}
		},
	}
	cmd.Flags().BoolVar(&fullDocument, "full-document", false, "include the post-update document on update events")
	return cmd
}

func newCreateIndexCmd() *cobra.Command {
	var name string
	var unique bool
	cmd := &cobra.Command{
		Use:   "create-index [collection] [keys-json]",
		Short: `Create an index, e.g. create-index users '{"email":1}'`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var keySpec map[string]int
			if err := json.Unmarshal([]byte(args[1]), &keySpec); err != nil {
				return fmt.Errorf("invalid keys JSON: %w", err)
			}

			model := mongolite.IndexModel{Name: name, Unique: unique}
			for path, dir := range keySpec {
				model.Keys = append(model.Keys, mongolite.IndexKey{Path: path, Dir: dir})
			}

			coll, err := db.Collection(ctx, args[0])
			if err != nil {
				return err
			}

			indexName, err := coll.CreateIndex(ctx, model)
			if err != nil {
				return err
			}
			printJSON(map[string]string{"indexName": indexName})
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "index name (derived from keys if omitted)")
	cmd.Flags().BoolVar(&unique, "unique", false, "create a UNIQUE index")
	return cmd
}
