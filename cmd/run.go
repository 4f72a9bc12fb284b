package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lmforge/tgen/config"
	"github.com/lmforge/tgen/device"
	"github.com/lmforge/tgen/engine"
	"github.com/lmforge/tgen/registry"
)

var runFlags struct {
	maxLength          int
	numReturnSequences int
	temperature        float64
	topK               int
	topP               float64
	repetitionPenalty  float64
	noRepeatNGramSize  int
	numBeams           int
	earlyStopping      bool
	greedy             bool
	seed               int64
	deviceName         string
}

var runCmd = &cobra.Command{
	Use:   "run <model> [prompt]",
	Short: "Generate text from a model",
	Long: `Generate text from a model. With a prompt argument, generate the
requested sequences and exit. Without one, start an interactive REPL.

The model argument can be a registered model name or a path to a model
directory containing model.onnx, config.json, vocab.json and merges.txt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.maxLength, "max-length", 128, "Maximum total length in tokens, prompt included")
	f.IntVarP(&runFlags.numReturnSequences, "num-return-sequences", "n", 1, "Number of sequences to generate")
	f.Float64VarP(&runFlags.temperature, "temperature", "t", 0.8, "Sampling temperature")
	f.IntVar(&runFlags.topK, "top-k", 50, "Keep only the k most likely tokens (0 disables)")
	f.Float64Var(&runFlags.topP, "top-p", 0.95, "Keep the smallest set of tokens with cumulative probability >= p")
	f.Float64Var(&runFlags.repetitionPenalty, "repetition-penalty", 1.1, "Penalty applied to already generated tokens (1 disables)")
	f.IntVar(&runFlags.noRepeatNGramSize, "no-repeat-ngram-size", 0, "Block n-grams of this size from repeating (0 disables)")
	f.IntVar(&runFlags.numBeams, "num-beams", 1, "Number of beams for beam search (1 disables)")
	f.BoolVar(&runFlags.earlyStopping, "early-stopping", false, "Stop beam search once enough finished hypotheses exist")
	f.BoolVar(&runFlags.greedy, "greedy", false, "Disable sampling and pick the most likely token at each step")
	f.Int64Var(&runFlags.seed, "seed", -1, "Random seed for reproducible sampling (-1 for nondeterministic)")
	f.StringVar(&runFlags.deviceName, "device", "", "Execution device: cpu, cuda or coreml (default autodetect)")
}

func buildRunOptions() engine.GenerateOptions {
	opts := engine.DefaultOptions()
	opts.MaxLength = runFlags.maxLength
	opts.NumReturnSequences = runFlags.numReturnSequences
	opts.Temperature = runFlags.temperature
	opts.TopK = runFlags.topK
	opts.TopP = runFlags.topP
	opts.RepetitionPenalty = runFlags.repetitionPenalty
	opts.NoRepeatNGramSize = runFlags.noRepeatNGramSize
	opts.NumBeams = runFlags.numBeams
	opts.EarlyStopping = runFlags.earlyStopping
	opts.DoSample = !runFlags.greedy
	opts.Seed = runFlags.seed
	return opts
}

func selectDevice() (device.Device, error) {
	if runFlags.deviceName != "" {
		return device.Parse(runFlags.deviceName)
	}
	return device.Detect(), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	modelArg := args[0]
	prompt := ""
	if len(args) > 1 {
		prompt = strings.Join(args[1:], " ")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mgr, err := registry.NewModelManager(cfg.BaseDir, registry.WithPullHost(cfg.PullHost))
	if err != nil {
		return fmt.Errorf("init model manager: %w", err)
	}

	modelDir, err := mgr.ResolveModelPath(modelArg)
	if err != nil {
		return err
	}

	dev, err := selectDevice()
	if err != nil {
		return err
	}

	eng := engine.New(dev)
	defer eng.Close()

	fmt.Fprintf(os.Stderr, "Loading model from %s (%s)\n", modelDir, dev)
	if err := eng.LoadModel(modelDir); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Model loaded.")

	opts := buildRunOptions()

	if prompt != "" {
		return generateAndPrint(cmd.Context(), eng, prompt, opts)
	}
	return repl(cmd.Context(), eng, opts)
}

// generateAndPrint streams a single sequence token by token, or prints
// numbered outputs when more than one sequence (or beam search) is
// requested.
func generateAndPrint(ctx context.Context, eng *engine.Engine, prompt string, opts engine.GenerateOptions) error {
	if opts.NumReturnSequences == 1 && opts.NumBeams <= 1 {
		err := eng.GenerateStream(ctx, prompt, opts, func(piece string) bool {
			fmt.Print(piece)
			return true
		})
		if err != nil {
			return err
		}
		fmt.Println()
		return nil
	}

	outputs, err := eng.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	for i, out := range outputs {
		fmt.Printf("Output %d:\n%s\n", i+1, out)
		if i < len(outputs)-1 {
			fmt.Println()
		}
	}
	return nil
}

func repl(ctx context.Context, eng *engine.Engine, opts engine.GenerateOptions) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print(">>> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print(">>> ")
			continue
		}

		switch strings.ToLower(line) {
		case "/exit", "/quit", "/bye":
			fmt.Println("Goodbye.")
			return nil
		case "/reset":
			eng.Reset()
			fmt.Fprintln(os.Stderr, "Cache reset.")
			fmt.Print(">>> ")
			continue
		case "/help":
			fmt.Println("Commands:")
			fmt.Println("  /exit, /quit, /bye  - Exit the REPL")
			fmt.Println("  /reset              - Reset the model cache")
			fmt.Println("  /help               - Show this help")
			fmt.Println("  <text>              - Generate a continuation")
			fmt.Print(">>> ")
			continue
		}

		if err := generateAndPrint(ctx, eng, line, opts); err != nil {
			fmt.Fprintf(os.Stderr, "\nGeneration error: %v\n", err)
		}
		fmt.Print(">>> ")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}
