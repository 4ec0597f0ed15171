package pipeline

import (
	"github.com/stretchr/testify/mock"

	"github.com/eigerco/blocksim/internal/firmware"
)

type registrarMock struct {
	mock.Mock
}

func (r *registrarMock) RegisterFirmware(version, measurement, binaryDigest string) (firmware.Record, error) {
	args := r.MethodCalled("RegisterFirmware", version, measurement, binaryDigest)
	return args.Get(0).(firmware.Record), args.Error(1)
}
