package main

import (
	"chat-relay/infrastructure/storage"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// "msg:" lists messages, "thread:" lists thread headers
	prefix := flag.String("prefix", "thread:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Thread", "Seq", "Username", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = storage.ScanRecords(db, *prefix, func(record storage.Record, err error) {
		if err != nil {
			fmt.Printf("Error decoding key %s: %v\n", record.Key, err)
			return
		}
		at := ""
		if !record.At.IsZero() {
			at = record.At.Format("15:04:05")
		}
		table.Append([]string{
			record.Key,
			record.Kind,
			at,
			record.Thread,
			record.Seq,
			record.Username,
			record.Detail,
		})
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			// A crashed relay leaves the value log untruncated, which a read-only open refuses
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			if err := db.Close(); err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
