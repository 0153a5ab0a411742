package svm

// Tracer observes execution. Tracers must not change VM state.
type Tracer interface {
	// Begin is called once, before the first fetch.
	Begin(vm *VM)
	// Before is called after fetching the instruction at pc.
	Before(vm *VM, pc int, in Instruction)
	// After is called once the instruction at pc has executed without a fault.
	After(vm *VM, pc int, in Instruction)
	// End is called once the VM halts (err == nil) or faults.
	End(vm *VM, err error)
}
