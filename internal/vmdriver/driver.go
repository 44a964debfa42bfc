package vmdriver

import (
	"context"
	"io"
	"time"

	fcsdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/sirupsen/logrus"

	"github.com/rik-org/riklet/internal/rikerr"
)

// killTimeout bounds how long Kill and Abort wait for the Firecracker
// process to exit after a shutdown request. Kill uses it only when no
// APITimeout is configured; Abort always uses it.
const killTimeout = 3 * time.Second

// State is a Driver's position in its New → Created → Running → Stopped
// lifecycle.
type State int

const (
	New State = iota
	Created
	Running
	Stopped
)

// Driver wraps one firecracker-go-sdk Machine behind a
// Create/Start/Kill lifecycle.
type Driver struct {
	params  MachineParams
	machine *fcsdk.Machine
	state   State
}

// NewDriver returns a Driver in state New for the given parameters. No
// host resources are touched until Create.
func NewDriver(params MachineParams) *Driver {
	return &Driver{params: params, state: New}
}

// discardingLogger satisfies the Firecracker SDK's logrus.FieldLogger
// requirement without producing a second logging stream: application code
// logs through log/slog, and this adapter exists purely to plug the gap.
func discardingLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Create builds the machine configuration and the SDK Machine handle. It
// does not spawn the Firecracker process or create its API socket; both
// happen in Start, together with the guest boot.
func (d *Driver) Create(ctx context.Context) error {
	if d.state != New {
		return rikerr.New(rikerr.FirecrackerApi, "create_wrong_state")
	}

	cfg := BuildConfig(d.params)

	cmd := fcsdk.VMCommandBuilder{}.
		WithBin(d.params.FirecrackerLocation).
		WithSocketPath(d.params.SocketPath).
		Build(ctx)

	machine, err := fcsdk.NewMachine(ctx, cfg,
		fcsdk.WithLogger(discardingLogger()),
		fcsdk.WithProcessRunner(cmd),
	)
	if err != nil {
		return rikerr.Wrap(rikerr.FirecrackerApi, "new_machine", err)
	}

	d.machine = machine
	d.state = Created
	return nil
}

// Start spawns the Firecracker process and boots the guest kernel. The
// tap device must already exist, and the caller must have already wired the
// tap device's addressing and firewall rules (RuntimeNetwork.Preboot):
// the guest configures eth0 statically from its boot args and expects a
// working gateway from the first instruction.
func (d *Driver) Start(ctx context.Context) error {
	if d.state != Created {
		return rikerr.New(rikerr.FirecrackerApi, "start_wrong_state")
	}
	if err := d.machine.Start(ctx); err != nil {
		return rikerr.Wrap(rikerr.FirecrackerApi, "machine_start", err)
	}
	d.state = Running
	return nil
}

// Kill stops the microVM. Calling Kill on a Driver that never reached
// Running returns a NotRunning error.
func (d *Driver) Kill(ctx context.Context) error {
	if d.state != Running {
		return rikerr.New(rikerr.NotRunning, "kill_not_running")
	}

	wait := killTimeout
	if d.params.APITimeout > 0 {
		wait = d.params.APITimeout
	}
	killCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := d.machine.StopVMM(); err != nil {
		d.state = Stopped
		return rikerr.Wrap(rikerr.FirecrackerApi, "stop_vmm", err)
	}
	_ = d.machine.Wait(killCtx)

	d.state = Stopped
	return nil
}

// State reports the driver's current lifecycle position.
func (d *Driver) State() State { return d.state }

// Abort force-stops a machine regardless of its recorded state. It exists
// only for compensating teardown when Up fails partway through: a failed
// Start may leave a spawned process behind even though the machine never
// reached Running. Best-effort, never returns an error to its caller's
// teardown path.
func (d *Driver) Abort(ctx context.Context) {
	if d.machine == nil {
		return
	}
	killCtx, cancel := context.WithTimeout(ctx, killTimeout)
	defer cancel()
	_ = d.machine.StopVMM()
	_ = d.machine.Wait(killCtx)
	d.state = Stopped
}
