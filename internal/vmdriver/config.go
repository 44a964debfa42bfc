// Package vmdriver translates a workload definition plus an initialized
// RuntimeNetwork into a concrete Firecracker microVM configuration and
// drives that machine's lifecycle.
package vmdriver

import (
	"fmt"
	"time"

	fcsdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
)

// bootArgsStatic is the kernel command line shared by every function
// instance: serial console only, panic on failure, minimal device
// probing. The per-instance "ip=" clause is appended by BootArgs.
const bootArgsStatic = "console=ttyS0 reboot=k nomodules random.trust_cpu=on panic=1 pci=off tsc=reliable i8042.nokbd i8042.noaux quiet loglevel=0"

// rootfsDriveID is the drive identifier every microVM's root device is
// registered under.
const rootfsDriveID = "rootfs"

// guestIfaceName is the network interface name inside the guest.
const guestIfaceName = "eth0"

// BootArgs appends the static ip= configuration documented at
// https://linuxlink.timesys.com/docs/static_ip, addressing the guest
// statically and disabling in-guest autoconfiguration.
func BootArgs(guestIP, hostIP, netmask string) string {
	return fmt.Sprintf("%s ip=%s::%s:%s::%s:off", bootArgsStatic, guestIP, hostIP, netmask, guestIfaceName)
}

// MachineParams carries everything needed to assemble an fcsdk.Config for
// one instance: the kernel/rootfs/binary locations from AgentConfig, the
// tap/MAC/addressing RuntimeNetwork.Init already chose, and the socket path the
// agent allocated for this instance.
type MachineParams struct {
	InstanceID           string
	KernelLocation       string
	RootfsPath           string
	FirecrackerLocation  string
	FirecrackerWorkspace string
	SocketPath           string

	TapName string
	MAC     string
	GuestIP string
	HostIP  string
	Netmask string

	VCPUCount  int64
	MemSizeMib int64

	// APITimeout bounds how long Kill waits for the Firecracker process to
	// exit. It is not applied as a deadline on Create/Start: the SDK ties
	// the machine's lifetime to the context those calls receive, so a
	// deadline there would kill a healthy VM when it fired.
	APITimeout time.Duration
}

// BuildConfig assembles the fcsdk.Config for one instance: kernel + boot
// args, root drive, NIC, and machine sizing.
func BuildConfig(p MachineParams) fcsdk.Config {
	vcpus := p.VCPUCount
	if vcpus == 0 {
		vcpus = 1
	}
	mem := p.MemSizeMib
	if mem == 0 {
		mem = 128
	}

	return fcsdk.Config{
		VMID:            p.InstanceID,
		SocketPath:      p.SocketPath,
		KernelImagePath: p.KernelLocation,
		KernelArgs:      BootArgs(p.GuestIP, p.HostIP, p.Netmask),
		Drives: []models.Drive{
			{
				DriveID:      fcsdk.String(rootfsDriveID),
				PathOnHost:   fcsdk.String(p.RootfsPath),
				IsRootDevice: fcsdk.Bool(true),
				IsReadOnly:   fcsdk.Bool(false),
			},
		},
		NetworkInterfaces: fcsdk.NetworkInterfaces{
			{
				StaticConfiguration: &fcsdk.StaticNetworkConfiguration{
					MacAddress:  p.MAC,
					HostDevName: p.TapName,
				},
			},
		},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  fcsdk.Int64(vcpus),
			MemSizeMib: fcsdk.Int64(mem),
			Smt:        fcsdk.Bool(false),
		},
	}
}
