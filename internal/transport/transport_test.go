// internal/transport/transport_test.go
package transport_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-telemetry/internal/transport"
	"github.com/tamzrod/modbus-telemetry/internal/transport/transporttest"
)

func TestSerialize_NoOverlap(t *testing.T) {
	fake := transporttest.NewFake()
	link := transport.Serialize(fake)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = link.Read(ctx, 5000, 1, 1, transport.ReadOnly)
		}()
		go func(v uint16) {
			defer wg.Done()
			_ = link.Write(ctx, []uint16{v}, 5008, 1, transport.ReadWrite)
		}(uint16(i))
	}
	wg.Wait()

	assert.Equal(t, 1, fake.MaxInflight())
	assert.Equal(t, 16, fake.Reads())
	assert.Equal(t, 16, fake.Writes())
}

func TestSerialize_Idempotent(t *testing.T) {
	s := transport.Serialize(transporttest.NewFake())
	assert.Same(t, s, transport.Serialize(s))
}

func TestRegisterClass_UnmarshalText(t *testing.T) {
	var c transport.RegisterClass
	require.NoError(t, c.UnmarshalText([]byte("holding")))
	assert.Equal(t, transport.ReadWrite, c)
	require.NoError(t, c.UnmarshalText([]byte("read_only")))
	assert.Equal(t, transport.ReadOnly, c)
	assert.Error(t, c.UnmarshalText([]byte("coil")))
}
