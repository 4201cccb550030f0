package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"churn/pkg/config"
	"churn/pkg/data"
	"churn/pkg/dataprep"
	"churn/pkg/experiment"
	"churn/pkg/logger"
	"churn/pkg/model"
	"churn/pkg/pipeline"
	"churn/pkg/report"
	"churn/pkg/segment"
	"churn/pkg/store"
	"churn/pkg/train"
)

const usage = `usage: churn <command> [flags]

commands:
  train    run the full experiment and save the best pipeline
  predict  score a CSV batch with a saved pipeline
  elbow    print k-means inertia for k = 1..max-k
  results  list stored results of a run
  synth    write a synthetic BankChurners-shaped CSV`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "train":
		err = runTrain(ctx, args)
	case "predict":
		err = runPredict(args)
	case "elbow":
		err = runElbow(args)
	case "results":
		err = runResults(ctx, args)
	case "synth":
		err = runSynth(args)
	default:
		fmt.Fprintf(os.Stderr, "%s unknown command %q\n\n%s\n", red("✗"), cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
		os.Exit(1)
	}
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config (defaults when empty)")
	input := fs.String("input", "", "override the configured input CSV")
	seed := fs.Int64("seed", 0, "override the configured seed")
	dev := fs.Bool("dev", false, "human-readable logs")
	fs.Parse(args)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *input != "" {
		cfg.Input = *input
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	log := logger.New("churn")
	if *dev || cfg.Log.Development {
		log = logger.NewDevelopment("churn")
	}
	defer log.Sync()

	exp, err := experiment.New(cfg, experiment.WithLogger(log))
	if err != nil {
		return err
	}
	rep, err := exp.Run(ctx)
	if err != nil {
		log.Error("experiment failed", zap.Error(err))
		return err
	}

	fmt.Printf("%s trained on %d records, evaluated on %d\n", green("✓"), rep.TrainSize, rep.TestSize)
	if rep.Elbow != nil {
		fmt.Printf("elbow suggests k=%d (using k=%d)\n", rep.Elbow.Suggested, cfg.Cluster.K)
	}
	for _, p := range rep.Profiles {
		fmt.Println(p)
	}
	fmt.Println()
	printResults(os.Stdout, rep.Results)
	fmt.Printf("\nbest: %s %s (%s) f1=%.4f\n", cyan(rep.Best.Model), rep.Best.Variant, rep.Best.Params, rep.Best.F1)
	if rep.ArtifactPath != "" {
		fmt.Printf("%s pipeline saved to %s\n", green("✓"), rep.ArtifactPath)
	}
	if rep.RunID != "" {
		fmt.Printf("run id %s\n", rep.RunID)
	}
	return nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	modelPath := fs.String("model", "", "saved pipeline")
	input := fs.String("input", "", "CSV batch to score")
	fs.Parse(args)
	if *modelPath == "" || *input == "" {
		return errors.New("predict needs -model and -input")
	}

	p, err := pipeline.LoadFile(*modelPath)
	if err != nil {
		return err
	}
	ds, err := data.LoadCSV(*input, data.BankChurnersSchema(), data.ReadOptions{})
	if err != nil {
		return err
	}
	preds, err := p.PredictBatch(ds.Records)
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %-6s %s\n", "CLIENTNUM", "churn", "probability")
	var yTrue, yPred []int
	var proba []float64
	for i, pr := range preds {
		label := green("no")
		if pr.Label == data.Attrited {
			label = red("yes")
		}
		fmt.Printf("%-12s %-6s %.4f\n", pr.ID, label, pr.Probability)
		if lbl := ds.Records[i].Label; lbl != "" {
			y, err := dataprep.EncodeTarget(ds.Schema, lbl, i)
			if err != nil {
				return err
			}
			yTrue, yPred, proba = append(yTrue, y), append(yPred, pr.Label), append(proba, pr.Probability)
		}
	}
	if len(yTrue) == len(preds) && len(preds) > 0 {
		acc, prec, rec, f1, auc := train.Scores(yTrue, yPred, proba)
		fmt.Println()
		printResults(os.Stdout, []train.EvaluationResult{{
			Model: p.Classifier.Name(), Variant: p.Meta.Variant,
			Accuracy: acc, Precision: prec, Recall: rec, F1: f1, ROCAUC: auc, TestSize: len(preds),
			Confusion: model.ConfusionMatrix(yTrue, yPred),
		}})
	}
	return nil
}

func runElbow(args []string) error {
	fs := flag.NewFlagSet("elbow", flag.ExitOnError)
	input := fs.String("input", "", "labelled CSV")
	maxK := fs.Int("max-k", segment.DefaultMaxK, "largest k to try")
	seed := fs.Int64("seed", 42, "k-means seed")
	plotPath := fs.String("plot", "", "write the elbow curve PNG here")
	fs.Parse(args)
	if *input == "" {
		return errors.New("elbow needs -input")
	}

	ds, err := data.LoadCSV(*input, data.BankChurnersSchema(), data.ReadOptions{RequireLabel: true})
	if err != nil {
		return err
	}
	m, _, err := dataprep.Prepare(ds)
	if err != nil {
		return err
	}
	res, err := segment.Elbow(m, *maxK, *seed)
	if err != nil {
		return err
	}
	fmt.Printf("%-4s %s\n", "k", "inertia")
	for i, k := range res.K {
		line := fmt.Sprintf("%-4d %.2f", k, res.Inertia[i])
		if k == res.Suggested {
			line = yellow(line + "  <- suggested")
		}
		fmt.Println(line)
	}
	if *plotPath != "" {
		if err := report.Elbow(res, *plotPath); err != nil {
			return err
		}
		fmt.Printf("%s plot saved to %s\n", green("✓"), *plotPath)
	}
	return nil
}

func runResults(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	dbPath := fs.String("db", filepath.Join("out", "results.db"), "results database")
	runID := fs.String("run", "", "run id")
	fs.Parse(args)
	if *runID == "" {
		return errors.New("results needs -run")
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	info, err := st.GetRun(ctx, *runID)
	if err != nil {
		return err
	}
	rows, err := st.Results(ctx, *runID)
	if err != nil {
		return err
	}
	fmt.Printf("run %s  input=%s seed=%d started %s\n", info.ID, info.Input, info.Seed, info.CreatedAt.Format("2006-01-02 15:04:05"))
	if info.BestModel != "" {
		fmt.Printf("best %s f1=%.4f\n", cyan(info.BestModel), info.BestF1)
	}
	fmt.Println()
	printResults(os.Stdout, rows)
	return nil
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	n := fs.Int("n", 10127, "number of records")
	seed := fs.Int64("seed", 42, "generator seed")
	out := fs.String("out", "BankChurners.csv", "output CSV")
	fs.Parse(args)

	file, err := os.Create(*out)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	if err := data.WriteCSV(file, data.Synthetic(*n, *seed)); err != nil {
		return err
	}
	fmt.Printf("%s wrote %d records to %s\n", green("✓"), *n, *out)
	return nil
}
