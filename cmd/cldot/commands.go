package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/cldot/pkg/dot"
	"github.com/orneryd/cldot/pkg/gpu/opencl"
)

// vectors is the YAML input format of `cldot dot --input`.
type vectors struct {
	X []float64 `yaml:"x"`
	Y []float64 `yaml:"y"`
}

func loadVectors(path string) (vectors, error) {
	var v vectors
	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("failed to read input: %w", err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("YAML syntax error in input: %w", err)
	}
	return v, nil
}

func newDotCmd(a *app) *cobra.Command {
	var (
		x, y  []float64
		input string
		pad   bool
		stats bool
	)

	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Compute the dot product of two vectors",
		Example: `  cldot dot --x 1,2,3,4 --y 1,1,1,1
  cldot dot --input vectors.yaml --pad`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input != "" {
				if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
					return errors.New("--input cannot be combined with --x or --y")
				}
				v, err := loadVectors(input)
				if err != nil {
					return err
				}
				x, y = v.X, v.Y
			}

			accel, err := a.accelerator()
			if err != nil {
				return err
			}
			defer accel.Release()

			var extra []dot.Option
			if pad {
				extra = append(extra, dot.WithTailPolicy(dot.TailPad))
			}
			p, err := a.pipeline(accel.Platform(), extra...)
			if err != nil {
				return err
			}

			result, err := p.DotProduct(x, y)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, result)

			if stats {
				s := accel.Stats()
				fmt.Fprintf(a.stdout, "uploaded %s, downloaded %s, %d kernel execution(s) on %s\n",
					humanize.IBytes(uint64(s.BytesUploaded)),
					humanize.IBytes(uint64(s.BytesDownloaded)),
					s.KernelExecutions,
					accel.DeviceName(),
				)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64SliceVar(&x, "x", nil, "first vector, comma separated")
	flags.Float64SliceVar(&y, "y", nil, "second vector, comma separated")
	flags.StringVar(&input, "input", "", "YAML file with x and y lists")
	flags.BoolVar(&pad, "pad", false, "zero-pad lengths that are not a multiple of 4")
	flags.BoolVar(&stats, "stats", false, "print device transfer statistics")
	return cmd
}

func newCapsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Print the capabilities the pipeline sees on the selected device",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			accel, err := a.accelerator()
			if err != nil {
				return err
			}
			defer accel.Release()

			dev, err := accel.Platform().DefaultDevice()
			if err != nil {
				return err
			}
			caps := dot.Inspect(dev)

			ctx, err := dev.NewContext()
			if err != nil {
				return err
			}
			defer ctx.Release()
			prog, k, err := dot.BuildKernel(ctx)
			if err != nil {
				return err
			}
			defer prog.Release()
			defer k.Release()
			dot.InspectKernel(&caps, k)

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "device\t%s (%s)\n", dev.Name(), dev.Vendor())
			row := func(c dot.Capability, value string) {
				status := "ok"
				if err, ok := caps.Defaulted[c]; ok {
					status = "defaulted: " + err.Error()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c, value, status)
			}
			row(dot.CapMaxWorkItemDims, fmt.Sprint(caps.MaxWorkItemDims))
			row(dot.CapMaxWorkGroupSize, fmt.Sprint(caps.MaxWorkGroupSize))
			row(dot.CapComputeUnits, fmt.Sprint(caps.ComputeUnits))
			row(dot.CapLocalMemBytes, humanize.IBytes(uint64(caps.LocalMemBytes)))
			row(dot.CapPreferredWorkGroupMultiple, fmt.Sprint(caps.PreferredWorkGroupMultiple))
			row(dot.CapMaxWorkItemSizes, strings.Trim(fmt.Sprint(caps.MaxWorkItemSizes), "[]"))
			return tw.Flush()
		},
	}
}

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Print the selected backend and device",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			accel, err := a.accelerator()
			if err != nil {
				return err
			}
			defer accel.Release()

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "backend\t%s\n", accel.Backend())
			fmt.Fprintf(tw, "platform\t%s\n", accel.PlatformName())
			fmt.Fprintf(tw, "device\t%s\n", accel.DeviceName())
			fmt.Fprintf(tw, "vendor\t%s\n", accel.DeviceVendor())
			if mb := accel.DeviceMemoryMB(); mb > 0 {
				fmt.Fprintf(tw, "memory\t%s\n", humanize.IBytes(uint64(mb)<<20))
			} else {
				fmt.Fprintf(tw, "memory\tunknown\n")
			}
			fmt.Fprintf(tw, "opencl devices\t%d\n", opencl.DeviceCount())
			return tw.Flush()
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cldot version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.stdout, "cldot %s (%s/%s, %s)\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
