package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/store"
)

func main() {
	var (
		dbPath  = flag.String("db", "data/behaviour-monitor.db", "caminho do BoltDB")
		outPath = flag.String("out", "events.csv", "arquivo CSV de saída")
	)
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro ao abrir db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro ao criar arquivo: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Cabeçalho
	if err := w.Write([]string{"ts", "entity_id", "old_state", "new_state", "attribute_change"}); err != nil {
		fmt.Fprintf(os.Stderr, "erro ao escrever cabeçalho: %v\n", err)
		os.Exit(1)
	}

	n := 0
	err = st.IterateEvents(func(ev store.EventRecord) bool {
		ts := ev.TS.UTC().Format(time.RFC3339)
		row := []string{ts, ev.EntityID, ev.OldState, ev.NewState, strconv.FormatBool(ev.AttributeChange)}
		if err := w.Write(row); err != nil {
			fmt.Fprintf(os.Stderr, "erro ao escrever linha: %v\n", err)
			return false
		}
		n++
		return true
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro ao iterar eventos: %v\n", err)
		os.Exit(1)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "erro ao finalizar csv: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Exportados %d eventos para %s\n", n, *outPath)
}
