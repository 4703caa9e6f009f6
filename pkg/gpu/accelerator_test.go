package gpu

import (
	"errors"
	"testing"

	"github.com/orneryd/cldot/pkg/compute"
	"github.com/orneryd/cldot/pkg/gpu/host"
	"github.com/orneryd/cldot/pkg/gpu/opencl"
)

func TestNewAccelerator(t *testing.T) {
	t.Run("auto detection", func(t *testing.T) {
		accel, err := NewAccelerator(nil)
		if err != nil {
			t.Fatalf("NewAccelerator() error = %v", err)
		}
		defer accel.Release()

		if !accel.IsEnabled() {
			t.Error("auto detection should always find a backend")
		}
		switch accel.Backend() {
		case BackendOpenCL:
			t.Logf("OpenCL device: %s (%s)", accel.DeviceName(), accel.DeviceVendor())
		case BackendHost:
			t.Logf("host device: %s", accel.DeviceName())
		default:
			t.Errorf("unexpected backend %q", accel.Backend())
		}
	})

	t.Run("host preferred", func(t *testing.T) {
		config := &Config{
			PreferredBackend: BackendHost,
			HostOptions:      []host.Option{host.WithName("test-cpu"), host.WithMemoryLimit(512 << 20)},
		}
		accel, err := NewAccelerator(config)
		if err != nil {
			t.Fatalf("NewAccelerator() error = %v", err)
		}
		defer accel.Release()

		if accel.Backend() != BackendHost {
			t.Errorf("Backend() = %q, want host", accel.Backend())
		}
		if accel.DeviceName() != "test-cpu" {
			t.Errorf("DeviceName() = %q, want test-cpu", accel.DeviceName())
		}
		if accel.DeviceMemoryMB() != 512 {
			t.Errorf("DeviceMemoryMB() = %d, want 512", accel.DeviceMemoryMB())
		}
		if accel.PlatformName() != host.PlatformName {
			t.Errorf("PlatformName() = %q", accel.PlatformName())
		}
	})

	t.Run("opencl without fallback", func(t *testing.T) {
		if opencl.IsAvailable() {
			t.Skip("OpenCL device present")
		}
		config := &Config{PreferredBackend: BackendOpenCL, FallbackOnError: false}
		_, err := NewAccelerator(config)
		if !errors.Is(err, ErrGPUNotAvailable) {
			t.Errorf("error = %v, want ErrGPUNotAvailable", err)
		}
		if !errors.Is(err, opencl.ErrOpenCLNotAvailable) {
			t.Errorf("error = %v, want the OpenCL cause", err)
		}
	})

	t.Run("opencl with fallback", func(t *testing.T) {
		config := &Config{PreferredBackend: BackendOpenCL, FallbackOnError: true}
		accel, err := NewAccelerator(config)
		if err != nil {
			t.Fatalf("NewAccelerator() error = %v", err)
		}
		defer accel.Release()

		if !opencl.IsAvailable() && accel.Backend() != BackendHost {
			t.Errorf("Backend() = %q, want host fallback", accel.Backend())
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewAccelerator(&Config{PreferredBackend: "cuda"})
		if !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("error = %v, want ErrUnknownBackend", err)
		}
	})
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"opencl", BackendOpenCL, false},
		{"host", BackendHost, false},
		{"metal", BackendNone, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newHostAccelerator(t *testing.T) *Accelerator {
	t.Helper()
	accel, err := NewAccelerator(&Config{
		PreferredBackend: BackendHost,
		HostOptions:      []host.Option{host.WithComputeUnits(2)},
	})
	if err != nil {
		t.Fatalf("NewAccelerator() error = %v", err)
	}
	t.Cleanup(accel.Release)
	return accel
}

const pairSource = `__kernel void dot_product(__global const double* x, __global const double* y, __global double* out) {}`

func TestAcceleratorStats(t *testing.T) {
	accel := newHostAccelerator(t)

	stats := accel.Stats()
	if stats != (AcceleratorStats{}) {
		t.Errorf("initial stats = %+v, want zero", stats)
	}

	dev, err := accel.Platform().DefaultDevice()
	if err != nil {
		t.Fatalf("DefaultDevice() error = %v", err)
	}
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	defer ctx.Release()

	x, err := ctx.NewBuffer(compute.MemReadOnly, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	y, err := ctx.NewBuffer(compute.MemReadOnly, []float64{1, 1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	out, err := ctx.NewEmptyBuffer(compute.MemWriteOnly, 1)
	if err != nil {
		t.Fatal(err)
	}

	prog, err := ctx.BuildProgram(pairSource)
	if err != nil {
		t.Fatalf("BuildProgram() error = %v", err)
	}
	defer prog.Release()
	k, err := prog.Kernel("dot_product")
	if err != nil {
		t.Fatalf("Kernel() error = %v", err)
	}

	// Wrapped buffers must reach the backend unwrapped.
	if err := k.SetArgs(x, y, out); err != nil {
		t.Fatalf("SetArgs() error = %v", err)
	}
	if err := k.Enqueue(compute.NDRange{GlobalSize: 1, LocalSize: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := k.Enqueue(compute.NDRange{GlobalSize: 1, LocalSize: 0}); err == nil {
		t.Error("Enqueue() with zero local size should fail")
	}

	got := make([]float64, 1)
	if err := out.Read(got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got[0] != 10 {
		t.Errorf("partial = %v, want 10", got[0])
	}

	stats = accel.Stats()
	want := AcceleratorStats{
		ContextsCreated:  1,
		BuffersCreated:   3,
		KernelExecutions: 1,
		KernelFailures:   1,
		BytesUploaded:    64,
		BytesDownloaded:  8,
	}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}

	accel.ResetStats()
	if accel.Stats() != (AcceleratorStats{}) {
		t.Error("ResetStats() should zero the stats")
	}
}

func TestAcceleratorRelease(t *testing.T) {
	accel := newHostAccelerator(t)
	accel.Release()

	if accel.IsEnabled() {
		t.Error("released accelerator should be disabled")
	}
	if accel.Backend() != BackendNone {
		t.Errorf("Backend() = %q, want none", accel.Backend())
	}
	if accel.DeviceName() != "none" {
		t.Errorf("DeviceName() = %q", accel.DeviceName())
	}
	if accel.DeviceMemoryMB() != 0 {
		t.Error("released accelerator should report no memory")
	}
	if _, err := accel.Platform().DefaultDevice(); !errors.Is(err, ErrReleased) {
		t.Errorf("DefaultDevice() error = %v, want ErrReleased", err)
	}
}

func BenchmarkAcceleratorPlatform(b *testing.B) {
	accel, err := NewAccelerator(&Config{PreferredBackend: BackendHost})
	if err != nil {
		b.Fatal(err)
	}
	defer accel.Release()

	data := make([]float64, 4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dev, _ := accel.Platform().DefaultDevice()
		ctx, _ := dev.NewContext()
		buf, _ := ctx.NewBuffer(compute.MemReadOnly, data)
		buf.Release()
		ctx.Release()
	}
}
