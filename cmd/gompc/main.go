package main

import (
	"fmt"
	"os"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/milosgajdos/go-mpc/config"
	"github.com/milosgajdos/go-mpc/controller"
	"github.com/milosgajdos/go-mpc/qp"
	"github.com/milosgajdos/go-mpc/qp/sqp"
	"github.com/milosgajdos/go-mpc/sim"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"
)

var (
	configFile string
	plotFile   string
	graphWidth int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gompc",
		Short: "constrained linear MPC simulation",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run closed loop simulation",
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "scenario yaml file")
	runCmd.Flags().StringVar(&plotFile, "plot", "", "write trace plot to PNG file")
	runCmd.Flags().IntVar(&graphWidth, "width", 80, "terminal graph width")

	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}
	}

	model, err := cfg.Model()
	if err != nil {
		return fmt.Errorf("failed to build plant model: %w", err)
	}

	weights, err := cfg.QPWeights()
	if err != nil {
		return err
	}

	ref, err := cfg.Ref()
	if err != nil {
		return err
	}

	builder, err := qp.NewBuilder(model, cfg.Horizon, weights, cfg.QPBounds(), ref)
	if err != nil {
		return fmt.Errorf("failed to formulate QP: %w", err)
	}

	solver, err := sqp.New(builder.Problem(), nil)
	if err != nil {
		return fmt.Errorf("failed to create QP solver: %w", err)
	}

	init, err := cfg.InitCond()
	if err != nil {
		return err
	}

	ctrl, err := controller.New(builder, solver, init.Input())
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	loop, err := sim.NewLoop(model, ctrl, cfg.Ts, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create simulation loop: %w", err)
	}

	trace, runErr := loop.Run(init, cfg.Samples)
	if trace != nil && trace.Samples() > 0 {
		report(cmd, trace, ref.AtVec(0))
	}
	if runErr != nil {
		return fmt.Errorf("simulation aborted: %w", runErr)
	}

	if plotFile != "" {
		p, err := sim.NewTracePlot(trace, ref.AtVec(0))
		if err != nil {
			return fmt.Errorf("failed to create trace plot: %w", err)
		}
		if err := p.Save(10*vg.Inch, 10*vg.Inch, plotFile); err != nil {
			return fmt.Errorf("failed to save trace plot: %w", err)
		}
		cmd.Printf("trace plot written to %s\n", plotFile)
	}

	return nil
}

func report(cmd *cobra.Command, trace *sim.Trace, ref float64) {
	n := trace.Samples()

	output := make([]float64, n)
	for i := 0; i < n; i++ {
		output[i] = trace.Outputs().At(i, 0)
	}

	cmd.Println("Output:")
	cmd.Println(asciigraph.Plot(output,
		asciigraph.Height(15),
		asciigraph.Width(graphWidth),
		asciigraph.Caption(fmt.Sprintf("reference: %.3f  final: %.4f", ref, output[n-1])),
	))

	tsol := trace.SolveTimes()
	var total, max time.Duration
	for _, d := range tsol[1:] {
		total += d
		if d > max {
			max = d
		}
	}
	cmd.Printf("first solve: %v\n", tsol[0])
	if n > 1 {
		cmd.Printf("warmed solves: avg %v, max %v\n", total/time.Duration(n-1), max)
	}
}
