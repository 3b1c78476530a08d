// ixy-fwd forwards packets between two network devices.
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/mkevac/debugcharts"

	"github.com/ixy-go/ixy/device"
	"github.com/ixy-go/ixy/forward"
	"github.com/ixy-go/ixy/memory"
	"github.com/ixy-go/ixy/pool"
	"github.com/ixy-go/ixy/stats"
)

func main() {
	log.SetFlags(0)

	var (
		vfio        = flag.Bool("vfio", true, "bind devices through the IOMMU (vfio) instead of direct-PCI")
		hugeDir     = flag.String("huge-dir", memory.HugeDir, "hugetlbfs mount point for DMA memory")
		entrySize   = flag.Int("entry-size", pool.DefaultEntrySize, "packet buffer size in bytes")
		poolEntries = flag.Int("pool-entries", 2048, "number of packet buffers per pool")
		debugCharts = flag.String("debug-charts-addr", "", "if set, serve live rate charts on this address (e.g. :1234)")
	)
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "%s forwards packets between two ports.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "usage: %s <pci-addr-1> <pci-addr-2>\n", os.Args[0])
		os.Exit(1)
	}

	memory.HugeDir = *hugeDir

	if *debugCharts != "" {
		// github.com/mkevac/debugcharts registers its handlers on
		// http.DefaultServeMux from its own init(); importing it for
		// side effect and serving DefaultServeMux is the package's
		// documented usage.
		go func() {
			log.Printf("ixy-fwd: debug charts listening on %s/debug/charts/", *debugCharts)
			if err := http.ListenAndServe(*debugCharts, nil); err != nil {
				log.Printf("ixy-fwd: debug charts server stopped: %v", err)
			}
		}()
	}

	devA := mustBind(flag.Arg(0), *vfio, *poolEntries, *entrySize)
	devB := mustBind(flag.Arg(1), *vfio, *poolEntries, *entrySize)

	sampleAtoB := stats.NewSampler(fmt.Sprintf("%s -> %s", flag.Arg(0), flag.Arg(1)), time.Second)
	sampleBtoA := stats.NewSampler(fmt.Sprintf("%s -> %s", flag.Arg(1), flag.Arg(0)), time.Second)

	forward.Loop(devA.rx, devA.tx, devB.rx, devB.tx, func(aToB, bToA forward.Stats) {
		sampleAtoB.Add(aToB.Rx, aToB.Tx, aToB.Dropped)
		sampleBtoA.Add(bToA.Rx, bToA.Tx, bToA.Dropped)
		sampleAtoB.MaybeReport()
		sampleBtoA.MaybeReport()
	}, nil)
}

// boundDevice bundles a bound device handle with the ring endpoints the
// forwarding loop drives. The core spec leaves the RX/TX ring itself
// out of scope (a driver-device collaborator); mustBind stops at the
// handle and pool, ready to be wired to a real descriptor-ring
// implementation for a specific NIC family.
type boundDevice struct {
	handle device.Handle
	pool   *pool.Pool
	rx, tx ringEndpoint
}

// ringEndpoint is a placeholder satisfying ring.Queue until a concrete
// NIC ring implementation is plugged in; it always reports empty
// batches, which keeps ixy-fwd runnable against a bound device before
// a driver-specific ring exists.
type ringEndpoint struct{}

func (ringEndpoint) RxBatch(out []*pool.Buffer, max int) int { return 0 }
func (ringEndpoint) TxBatch(in []*pool.Buffer) int           { return 0 }

func mustBind(pciAddr string, vfio bool, poolEntries, entrySize int) *boundDevice {
	handle, err := bind(pciAddr, vfio)
	if err != nil {
		log.Fatalf("ixy-fwd: bind %s: %v", pciAddr, err)
	}

	space := memory.Physical
	if vfio {
		space = memory.IOVirtual
	}

	p, err := pool.New(poolEntries, entrySize, space, handle)
	if err != nil {
		log.Fatalf("ixy-fwd: allocate pool for %s: %v", pciAddr, err)
	}

	return &boundDevice{handle: handle, pool: p}
}

func bind(pciAddr string, vfio bool) (device.Handle, error) {
	if vfio {
		h, err := device.BindVFIO(pciAddr)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	h, err := device.BindDirectPCI(pciAddr)
	if err != nil {
		return nil, err
	}
	return h, nil
}
