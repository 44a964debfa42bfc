package netfabric

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/rik-org/riklet/internal/rikerr"
)

// Subnet is one leased /30: .1 is the host side, .2 the guest side.
type Subnet struct {
	HostIP    net.IP
	GuestIP   net.IP
	base      uint32
	prefixLen int
}

// HostCIDR is the host_ip/30 address assigned to the tap device.
func (s Subnet) HostCIDR() string {
	return fmt.Sprintf("%s/%d", s.HostIP, s.prefixLen)
}

// GuestCIDR is the guest_ip/30 the boot args hand to the guest kernel.
func (s Subnet) GuestCIDR() string {
	return fmt.Sprintf("%s/%d", s.GuestIP, s.prefixLen)
}

// Netmask is the dotted-decimal mask matching prefixLen (always
// 255.255.255.252 for a /30 pool).
func (s Subnet) Netmask() string {
	mask := net.CIDRMask(s.prefixLen, 32)
	return net.IP(mask).String()
}

// IPPool carves a pool CIDR (default 10.0.0.0/16) into /30 subnets and
// leases them out one at a time, process-wide, under a single mutex — the
// only lock in this package held across no suspension point (its critical
// section is pure arithmetic and map bookkeeping).
type IPPool struct {
	mu       sync.Mutex
	base     uint32
	count    uint32 // number of /30 blocks in the pool
	leased   map[uint32]bool
	nextScan uint32
}

// NewIPPool parses poolCIDR (e.g. "10.0.0.0/16") and prepares it for /30
// allocation. Any state from a previous agent run is deliberately not
// recovered: interfaces are recreated from scratch.
func NewIPPool(poolCIDR string) (*IPPool, error) {
	_, ipNet, err := net.ParseCIDR(poolCIDR)
	if err != nil {
		return nil, rikerr.Wrap(rikerr.Network, "parse_pool_cidr", err)
	}
	ones, bits := ipNet.Mask.Size()
	if bits != 32 {
		return nil, rikerr.New(rikerr.Network, "pool_cidr_not_ipv4")
	}
	if ones > 30 {
		return nil, rikerr.New(rikerr.Network, "pool_cidr_too_small")
	}

	base, err := ipv4ToUint32(ipNet.IP)
	if err != nil {
		return nil, rikerr.Wrap(rikerr.Network, "pool_base_addr", err)
	}
	blockCount := uint32(1) << (30 - ones)

	return &IPPool{
		base:   base,
		count:  blockCount,
		leased: make(map[uint32]bool),
	}, nil
}

// ErrPoolExhausted is returned by Lease when every /30 block is in use.
var ErrPoolExhausted = rikerr.New(rikerr.Network, "pool_exhausted")

// Lease reserves the next free /30 block and returns its host/guest
// addressing.
func (p *IPPool) Lease() (Subnet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := uint32(0); i < p.count; i++ {
		idx := (p.nextScan + i) % p.count
		if p.leased[idx] {
			continue
		}
		p.leased[idx] = true
		p.nextScan = (idx + 1) % p.count

		blockBase := p.base + idx*4
		return Subnet{
			HostIP:    uint32ToIPv4(blockBase + 1),
			GuestIP:   uint32ToIPv4(blockBase + 2),
			base:      blockBase,
			prefixLen: 30,
		}, nil
	}
	return Subnet{}, ErrPoolExhausted
}

// Release returns a leased subnet to the pool. Idempotent: releasing a
// subnet not currently leased (or not owned by this pool) is a no-op.
func (p *IPPool) Release(s Subnet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := (s.base - p.base) / 4
	delete(p.leased, idx)
}

func ipv4ToUint32(ip net.IP) (uint32, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("not an IPv4 address: %v", ip)
	}
	return binary.BigEndian.Uint32(ip4), nil
}

func uint32ToIPv4(n uint32) net.IP {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return net.IP(b)
}
