package stressor

import "github.com/loadbreaker/loadbreaker/internal/registry"

// Catalog builds the default registry of built-in stressors (§2.1). Real
// deployments would register hundreds; this pack carries six, covering
// the cpu, vm/memory, io/filesystem, pipe/scheduler, network and
// pathological classes, to exercise the scheduler, shared plane and
// metrics engine end to end. The other classes have no stressor here.
func Catalog(scratchDir string) *registry.Registry {
	r := registry.New()

	must := func(d *registry.Descriptor) {
		if err := r.Register(d); err != nil {
			panic(err) // programmer error: static catalog, ids/names fixed at compile time
		}
	}

	must(&registry.Descriptor{
		ID: 1, Name: "cpu", Class: registry.ClassCPU, ShortOpt: 'c',
		OpsCode: "cpu-ops", VerifyMode: registry.VerifyOptional, Module: NewCPU(),
	})
	must(&registry.Descriptor{
		ID: 2, Name: "vm", Class: registry.ClassVM | registry.ClassMemory,
		OpsCode: "vm-ops", VerifyMode: registry.VerifyOptional, Module: NewVM(),
	})
	must(&registry.Descriptor{
		ID: 3, Name: "hdd", Class: registry.ClassIO | registry.ClassFilesystem,
		OpsCode: "hdd-ops", VerifyMode: registry.VerifyOptional, Module: NewHDD(scratchDir),
	})
	must(&registry.Descriptor{
		ID: 4, Name: "pipe", Class: registry.ClassPipe | registry.ClassScheduler,
		OpsCode: "pipe-ops", VerifyMode: registry.VerifyOptional, Module: NewPipe(),
	})
	must(&registry.Descriptor{
		ID: 5, Name: "sock", Class: registry.ClassNetwork,
		OpsCode: "sock-ops", VerifyMode: registry.VerifyOptional, Module: NewSock(),
	})
	must(&registry.Descriptor{
		ID: 6, Name: "bigheap", Class: registry.ClassMemory | registry.ClassPathological,
		OpsCode: "bigheap-ops", VerifyMode: registry.VerifyNone, Module: NewBigHeap(),
	})

	return r
}
