package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/framekit/frame"
)

var (
	benchWorkload   string
	benchThreads    int
	benchIterations int
	benchRounds     int
	benchSize       string
	benchMemory     string
)

func init() {
	cmd := newBenchCmd()
	cmd.Flags().StringVar(&benchWorkload, "workload", "bulk", "Workload: bulk, repeat or rand")
	cmd.Flags().IntVarP(&benchThreads, "threads", "t", 1, "Concurrent cores")
	cmd.Flags().IntVarP(&benchIterations, "iterations", "i", 1, "Repetitions, each on a freshly formatted file")
	cmd.Flags().IntVar(&benchRounds, "rounds", 10, "Free/allocate rounds of the rand workload")
	cmd.Flags().StringVarP(&benchSize, "size", "s", "small", "Allocation size: small, huge or giant")
	cmd.Flags().StringVarP(&benchMemory, "memory", "m", "256M", "Size of the benchmark file")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench [file]",
		Short: "Run a synthetic allocation workload",
		Long: `The bench command formats a file (a temporary one if none is given)
and runs a workload on it:

  bulk    every core allocates half of its share, then frees it all
  repeat  every core allocates half of its share, then times get/put pairs
  rand    one core fills 90% of the frames, a random half is freed, then
          every core repeatedly frees and reallocates 10% of its frames
          at random; the free huge regions are reported after each round

Times are averages per operation over all cores.

Example:
  framectl bench --threads 4 --workload bulk
  framectl bench frames.bin --workload rand --memory 1G --threads 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(args)
		},
	}
	return cmd
}

type benchResult struct {
	Workload  string `json:"workload"`
	Size      string `json:"size"`
	Threads   int    `json:"threads"`
	Iteration int    `json:"iteration"`
	Allocs    int    `json:"allocs"` // Per core
	GetNs     int64  `json:"get_ns"`
	PutNs     int64  `json:"put_ns"`
	InitMs    int64  `json:"init_ms"`
	TotalMs   int64  `json:"total_ms"`
	FreeHuge  []int  `json:"free_huge,omitempty"`
}

type workload func(a *frame.Allocator, size frame.Size, allocs int, res *benchResult) error

var workloads = map[string]workload{
	"bulk":   benchBulk,
	"repeat": benchRepeat,
	"rand":   benchRand,
}

func runBench(args []string) (err error) {
	run, ok := workloads[benchWorkload]
	if !ok {
		return fmt.Errorf("unknown workload %q (must be bulk, repeat or rand)", benchWorkload)
	}
	size, err := frame.ParseSize(benchSize)
	if err != nil {
		return err
	}
	if benchWorkload == "rand" && size != frame.Small {
		return fmt.Errorf("the rand workload only allocates small frames")
	}
	if benchThreads < 1 || benchIterations < 1 {
		return fmt.Errorf("threads and iterations must be positive")
	}
	memory, err := parseBytes(benchMemory)
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		f, cerr := os.CreateTemp("", "framectl-bench-*.bin")
		if cerr != nil {
			return cerr
		}
		path = f.Name()
		f.Close()
		defer func() { err = errors.Join(err, os.Remove(path)) }()
	}

	var results []benchResult
	for it := 0; it < benchIterations; it++ {
		res, err := benchOnce(path, memory, size, run, it)
		if err != nil {
			return err
		}
		results = append(results, res)
		if !jsonOut {
			printResult(res)
		}
	}
	if jsonOut {
		return printJSON(results)
	}
	return nil
}

func benchOnce(path string, memory int64, size frame.Size, run workload, it int) (benchResult, error) {
	res := benchResult{Workload: benchWorkload, Size: size.String(), Threads: benchThreads, Iteration: it}

	cfg := config()
	start := time.Now()
	a, err := frame.OpenFile(path, memory, benchThreads, true, cfg)
	if err != nil {
		return res, fmt.Errorf("format %s: %w", path, err)
	}
	res.InitMs = time.Since(start).Milliseconds()

	allocs := a.Pages() / benchThreads / 2 / size.Frames(a.RegionsPerSubtree())
	if allocs == 0 {
		return res, errors.Join(
			fmt.Errorf("%s of memory is too small for %s allocations on %d cores", benchMemory, size, benchThreads),
			a.Close())
	}
	res.Allocs = allocs
	printVerbose("%s: %d cores, %d %s allocations each\n", benchWorkload, benchThreads, allocs, size)

	start = time.Now()
	err = run(a, size, allocs, &res)
	res.TotalMs = time.Since(start).Milliseconds()
	return res, errors.Join(err, a.Close())
}

func printResult(r benchResult) {
	printInfo("%s %s t=%d #%d: allocs=%d get=%dns put=%dns init=%dms total=%dms\n",
		r.Workload, r.Size, r.Threads, r.Iteration, r.Allocs, r.GetNs, r.PutNs, r.InitMs, r.TotalMs)
	for round, free := range r.FreeHuge {
		printInfo("  round %d: %d free huge regions\n", round, free)
	}
}

// parallel runs fn on every core and returns the average of the returned
// per operation times together with the first error.
func parallel(threads int, fn func(core int) (time.Duration, error)) (int64, error) {
	var (
		wg    sync.WaitGroup
		times = make([]time.Duration, threads)
		errs  = make([]error, threads)
	)
	for core := 0; core < threads; core++ {
		wg.Add(1)
		go func(core int) {
			defer wg.Done()
			times[core], errs[core] = fn(core)
		}(core)
	}
	wg.Wait()

	var sum time.Duration
	for _, d := range times {
		sum += d
	}
	return (sum / time.Duration(threads)).Nanoseconds(), errors.Join(errs...)
}

func perOp(d time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return d / time.Duration(n)
}

func benchBulk(a *frame.Allocator, size frame.Size, allocs int, res *benchResult) error {
	held := make([][]uint64, benchThreads)

	var err error
	res.GetNs, err = parallel(benchThreads, func(core int) (time.Duration, error) {
		addrs := make([]uint64, 0, allocs)
		start := time.Now()
		for i := 0; i < allocs; i++ {
			addr, err := a.Get(core, size)
			if err != nil {
				return 0, fmt.Errorf("core %d get %d: %w", core, i, err)
			}
			addrs = append(addrs, addr)
		}
		held[core] = addrs
		return perOp(time.Since(start), allocs), nil
	})
	if err != nil {
		return err
	}

	res.PutNs, err = parallel(benchThreads, func(core int) (time.Duration, error) {
		start := time.Now()
		for _, addr := range held[core] {
			if err := a.Put(core, addr, size); err != nil {
				return 0, fmt.Errorf("core %d put %#x: %w", core, addr, err)
			}
		}
		return perOp(time.Since(start), len(held[core])), nil
	})
	if err != nil {
		return err
	}
	if n := a.AllocatedPages(); n != 0 {
		return fmt.Errorf("%d frames still allocated after freeing everything", n)
	}
	return nil
}

func benchRepeat(a *frame.Allocator, size frame.Size, allocs int, res *benchResult) error {
	for core := 0; core < benchThreads; core++ {
		for i := 0; i < allocs; i++ {
			if _, err := a.Get(core, size); err != nil {
				return fmt.Errorf("core %d prefill %d: %w", core, i, err)
			}
		}
	}

	ns, err := parallel(benchThreads, func(core int) (time.Duration, error) {
		start := time.Now()
		for i := 0; i < allocs; i++ {
			addr, err := a.Get(core, size)
			if err != nil {
				return 0, fmt.Errorf("core %d get %d: %w", core, i, err)
			}
			if err := a.Put(core, addr, size); err != nil {
				return 0, fmt.Errorf("core %d put %#x: %w", core, addr, err)
			}
		}
		return perOp(time.Since(start), allocs), nil
	})
	res.GetNs, res.PutNs = ns, ns
	if err != nil {
		return err
	}
	want := benchThreads * allocs * size.Frames(a.RegionsPerSubtree())
	if n := a.AllocatedPages(); n != want {
		return fmt.Errorf("%d frames allocated, want %d", n, want)
	}
	return nil
}

func benchRand(a *frame.Allocator, _ frame.Size, _ int, res *benchResult) error {
	fill := a.Pages() * 9 / 10
	addrs := make([]uint64, 0, fill)
	for i := 0; i < fill; i++ {
		addr, err := a.Get(0, frame.Small)
		if err != nil {
			return fmt.Errorf("fill %d of %d: %w", i, fill, err)
		}
		addrs = append(addrs, addr)
	}
	rng := rand.New(rand.NewPCG(1337, 0))
	rng.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })
	for _, addr := range addrs[:fill/2] {
		if err := a.Put(0, addr, frame.Small); err != nil {
			return fmt.Errorf("free %#x: %w", addr, err)
		}
	}
	res.FreeHuge = append(res.FreeHuge, a.Stats().FreeHuge)

	rest := addrs[fill/2:]
	share := len(rest) / benchThreads
	lists := make([][]uint64, benchThreads)
	for core := range lists {
		lists[core] = rest[core*share : (core+1)*share]
	}
	rngs := make([]*rand.Rand, benchThreads)
	for core := range rngs {
		rngs[core] = rand.New(rand.NewPCG(uint64(core), 1337))
	}

	var gets, puts int64
	for round := 0; round < benchRounds; round++ {
		var putNs int64
		getNs, err := parallel(benchThreads, func(core int) (time.Duration, error) {
			list, r := lists[core], rngs[core]
			r.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
			n := len(list) / 10

			start := time.Now()
			for _, addr := range list[:n] {
				if err := a.Put(core, addr, frame.Small); err != nil {
					return 0, fmt.Errorf("core %d put %#x: %w", core, addr, err)
				}
			}
			if core == 0 {
				putNs = perOp(time.Since(start), n).Nanoseconds()
			}

			start = time.Now()
			for i := range list[:n] {
				addr, err := a.Get(core, frame.Small)
				if err != nil {
					return 0, fmt.Errorf("core %d get: %w", core, err)
				}
				list[i] = addr
			}
			return perOp(time.Since(start), n), nil
		})
		if err != nil {
			return err
		}
		gets += getNs
		puts += putNs
		res.FreeHuge = append(res.FreeHuge, a.Stats().FreeHuge)
	}
	if benchRounds > 0 {
		res.GetNs = gets / int64(benchRounds)
		res.PutNs = puts / int64(benchRounds)
	}
	return nil
}
