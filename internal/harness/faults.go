package harness

import (
	"context"
	"fmt"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/kernel"
	"github.com/roach88/kmc/internal/port"
)

// faultPort wraps a kernel port and perturbs chosen rounds. target exposes
// the live target state so divergence can be injected behind the port.
type faultPort struct {
	port.Port[*kernel.State]
	target func() *kernel.State
	faults map[int]Fault
	sent   int
}

func newFaultPort(p port.Port[*kernel.State], target func() *kernel.State, faults []Fault) *faultPort {
	byRound := make(map[int]Fault, len(faults))
	for _, f := range faults {
		byRound[f.Round] = f
	}
	return &faultPort{Port: p, target: target, faults: byRound}
}

func (f *faultPort) current() Fault {
	return f.faults[f.sent-1]
}

func (f *faultPort) SendCommand(ctx context.Context, cmd command.Command[*kernel.State]) error {
	if err := f.Port.SendCommand(ctx, cmd); err != nil {
		return err
	}
	f.sent++
	if f.current().Diverge {
		_, _ = kernel.Spawn{}.Execute(f.target())
	}
	return nil
}

func (f *faultPort) ReceiveResult(ctx context.Context) (int64, error) {
	retv, err := f.Port.ReceiveResult(ctx)
	if err != nil {
		return 0, err
	}
	return retv + f.current().Retv, nil
}

func (f *faultPort) ReceiveExtra(ctx context.Context, length int) ([]byte, error) {
	rx, ok := f.Port.(port.ExtraReceiver)
	if !ok {
		return nil, &port.IOError{Op: "extra", Err: fmt.Errorf("transport has no extra channel")}
	}
	extra, err := rx.ReceiveExtra(ctx, length)
	if err != nil || !f.current().Extra {
		return extra, err
	}
	for i := range extra {
		extra[i] ^= 0xff
	}
	return extra, nil
}
