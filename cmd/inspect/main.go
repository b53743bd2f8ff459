// Command inspect dumps the contents of a courier badger directory as a
// table: messages of a conversation pair, conversation markers, or user
// profiles, depending on the scanned prefix.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, conv:, user:, ref:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := fmt.Sprintf(" Scanning %q in %s ", *prefix, *dbPath)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Pair", "Time", "Sender", "Read", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append(toRow(key, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
}

func toRow(key string, val []byte) []string {
	parts := strings.SplitN(key, ":", 4)
	if parts[0] != "msg" || len(parts) != 4 {
		return []string{shorten(key, 48), "", "", "", "", fmt.Sprintf("%d bytes", len(val))}
	}

	var payload struct {
		Sender    string `json:"sender"`
		Content   string `json:"content"`
		CreatedAt string `json:"created_at"`
		Read      bool   `json:"read"`
	}
	if err := json.Unmarshal(val, &payload); err != nil {
		// A malformed value should not stop the whole dump.
		return []string{shorten(key, 48), parts[1], "", "", "", "unreadable: " + err.Error()}
	}

	readMark := ""
	if payload.Read {
		readMark = "✓"
	}
	return []string{
		shorten(parts[3], 8),
		parts[1],
		payload.CreatedAt,
		payload.Sender,
		readMark,
		shorten(payload.Content, 60),
	}
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
