// Command label-prop runs the two halves of label propagation resolution
// around an external solver.
//
// Usage:
//
//	go run ./cmd/label-prop [-config config.yaml] graph
//	go run ./cmd/label-prop [-config config.yaml] resolve
//
// "graph" reads the corpus at corpus_cache_path and writes graph_path and
// seed_path for the solver. "resolve" trains on the solver output at
// distribution_path, disambiguates the corpus, logs an evaluation against
// the gold candidates and writes the resolved corpus back to
// corpus_cache_path.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/andreiashu/toponym"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config path] graph|resolve\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env")

	cfg, err := toponym.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := toponym.NewLogger(cfg.Log)
	toponym.SetLogger(log)

	if err := run(cfg, flag.Arg(0), log); err != nil {
		log.Error("label propagation failed", "step", flag.Arg(0), "err", err)
		os.Exit(1)
	}
}

var errNoCorpus = errors.New("corpus_cache_path is not set")

func run(cfg *toponym.Config, step string, log *slog.Logger) error {
	if cfg.CorpusCachePath == "" {
		return errNoCorpus
	}
	c, err := toponym.LoadCorpusCache(cfg.CorpusCachePath)
	if err != nil {
		return err
	}

	switch step {
	case "graph":
		b, err := cfg.NewGraphBuilder()
		if err != nil {
			return err
		}
		_, err = b.WriteFiles(c, cfg.GraphPath, cfg.SeedPath)
		return err
	case "resolve":
		r, err := cfg.NewResolver()
		if err != nil {
			return err
		}
		if _, err := r.Disambiguate(c); err != nil {
			return err
		}
		eval := toponym.Evaluate(c)
		log.Info("evaluated selections",
			"with_gold", eval.WithGold,
			"correct", eval.Correct,
			"precision", eval.Precision(),
			"recall", eval.Recall())
		return toponym.SaveCorpus(cfg.CorpusCachePath, c)
	}
	return fmt.Errorf("unknown step %q", step)
}
