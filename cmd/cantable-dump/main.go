// Command cantable-dump streams the rows of a cantable file to stdout as
// tab-separated key/value pairs, or looks up a single key when -key is set.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/canteradb/cantable"
)

func main() {
	var (
		key          = flag.String("key", "", "look up a single key instead of dumping every row")
		rebuildIndex = flag.Bool("rebuild-index", false, "add a hash index to a rows-only file before opening it")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cantable-dump [-key KEY] [-rebuild-index] FILE")
		os.Exit(2)
	}
	path := flag.Arg(0)

	if *rebuildIndex {
		if err := cantable.RebuildIndex(path); err != nil {
			log.Fatalf("rebuild-index: %v", err)
		}
	}

	t, err := cantable.Open(path)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer t.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	if *key != "" {
		found, err := t.SeekToKey([]byte(*key))
		if err != nil {
			log.Fatalf("seek-to-key: %v", err)
		}
		if !found {
			fmt.Fprintf(os.Stderr, "key not found: %q\n", *key)
			os.Exit(1)
		}
		_, value, _, err := t.ReadRow()
		if err != nil {
			log.Fatalf("read-row: %v", err)
		}
		w.Write(value)
		w.WriteByte('\n')
		return
	}

	t.SeekToFirst()
	for {
		row, value, ok, err := t.ReadRow()
		if err != nil {
			log.Fatalf("read-row: %v", err)
		}
		if !ok {
			break
		}
		w.Write(row)
		w.WriteByte('\t')
		w.Write(value)
		w.WriteByte('\n')
	}
}
