// bench-hibernation measures heap memory before and after arena Hibernate()
// calls while a tree grows in chunks of random inserts.
//
// Usage:
//
//	go run ./scripts/bench-hibernation --keys 2000000 --chunk-size 500000 \
//	  --profile-dir docs/profiles/hibernation
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

type heapSnapshot struct {
	label      string
	heapInUse  uint64
	heapSys    uint64
	heapIdle   uint64
	compressed int
}

func main() {
	keys := flag.Int("keys", 1_000_000, "Number of keys to insert")
	chunkSize := flag.Int("chunk-size", 250_000, "Inserts between hibernation cycles")
	seed := flag.Int64("seed", 1, "Random seed")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles (empty = none)")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *chunkSize <= 0 {
		log.Fatal("--chunk-size must be positive")
	}

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil {
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	if *cpuProfile {
		if *profileDir == "" {
			log.Fatal("--cpu-profile requires --profile-dir")
		}

		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, cpuErr := os.Create(cpuPath)
		if cpuErr != nil {
			log.Fatalf("create cpu profile: %v", cpuErr)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}

		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	tree := rbtree.New()
	store := tree.Arena()
	rng := rand.New(rand.NewSource(*seed)) //nolint:gosec // reproducible load, not security.

	var snapshots []heapSnapshot

	takeSnapshot := func(label string) {
		runtime.GC()
		runtime.GC()

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		snapshots = append(snapshots, heapSnapshot{
			label:      label,
			heapInUse:  m.HeapInuse,
			heapSys:    m.HeapSys,
			heapIdle:   m.HeapIdle,
			compressed: tree.Stats().CompressedBytes,
		})
		log.Printf("  [heap] %-36s inuse=%9s  sys=%9s  idle=%9s",
			label, humanize.IBytes(m.HeapInuse), humanize.IBytes(m.HeapSys), humanize.IBytes(m.HeapIdle))
	}

	writeHeapProfile := func(name string) {
		if *profileDir == "" {
			return
		}

		runtime.GC()

		path := filepath.Join(*profileDir, name)

		f, ferr := os.Create(path)
		if ferr != nil {
			log.Printf("warning: create heap profile %s: %v", path, ferr)

			return
		}
		defer f.Close()

		if perr := pprof.WriteHeapProfile(f); perr != nil {
			log.Printf("warning: write heap profile %s: %v", path, perr)
		}
	}

	takeSnapshot("before_inserts")

	for chunk, start := 0, 0; start < *keys; chunk, start = chunk+1, start+*chunkSize {
		if chunk > 0 {
			takeSnapshot(fmt.Sprintf("chunk_%d_before_hibernate", chunk))
			writeHeapProfile(fmt.Sprintf("heap_chunk_%d_before_hibernate.prof", chunk))

			store.Hibernate()

			takeSnapshot(fmt.Sprintf("chunk_%d_after_hibernate", chunk))
			writeHeapProfile(fmt.Sprintf("heap_chunk_%d_after_hibernate.prof", chunk))

			if err := store.Boot(); err != nil {
				log.Fatalf("boot: %v", err)
			}

			takeSnapshot(fmt.Sprintf("chunk_%d_after_boot", chunk))
		}

		end := min(start+*chunkSize, *keys)
		log.Printf("inserting chunk %d (keys %d-%d)", chunk+1, start, end)

		for range end - start {
			tree.Insert(rng.Int31())
		}
	}

	takeSnapshot("after_all_chunks")

	if err := tree.Check(); err != nil {
		log.Fatalf("check: %v", err)
	}

	printTimeline(snapshots, store.Stats())
}

func printTimeline(snapshots []heapSnapshot, stats arena.Stats) {
	timeline := table.NewWriter()
	timeline.SetOutputMirror(os.Stdout)
	timeline.SetTitle("Heap Memory Timeline")
	timeline.AppendHeader(table.Row{"Phase", "InUse", "Sys", "Idle", "Compressed"})

	for _, s := range snapshots {
		timeline.AppendRow(table.Row{
			s.label,
			humanize.IBytes(s.heapInUse),
			humanize.IBytes(s.heapSys),
			humanize.IBytes(s.heapIdle),
			humanize.IBytes(uint64(s.compressed)), //nolint:gosec // length is never negative.
		})
	}

	timeline.Render()

	fmt.Println()
	fmt.Printf("arena: %s records, capacity %s, %s reserved, %d grows\n",
		humanize.Comma(int64(stats.Live)), humanize.Comma(int64(stats.Capacity)),
		humanize.IBytes(stats.ReservedBytes), stats.Grows)

	fmt.Println()
	fmt.Println("=== Hibernation Memory Deltas ===")

	for i := 0; i+1 < len(snapshots); i++ {
		curr, next := snapshots[i], snapshots[i+1]
		if !strings.HasSuffix(curr.label, "before_hibernate") || !strings.HasSuffix(next.label, "after_hibernate") {
			continue
		}

		delta := float64(curr.heapInUse) - float64(next.heapInUse)
		pct := delta / float64(curr.heapInUse) * 100 //nolint:mnd // percent.
		fmt.Printf("  %s -> %s: %s freed (%.1f%%)\n",
			curr.label, next.label, humanize.IBytes(uint64(max(delta, 0))), pct)
	}
}
