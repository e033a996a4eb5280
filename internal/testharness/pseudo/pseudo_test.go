package pseudo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/internal/testharness/pseudo"
	"github.com/matter-conformance/yamltests/pkg/discovery"
	"github.com/matter-conformance/yamltests/pkg/value"
)

func step(cluster, command string, args ...any) *loader.Step {
	s := &loader.Step{Cluster: cluster, Command: command, Enabled: true}
	for i := 0; i+1 < len(args); i += 2 {
		s.Arguments = append(s.Arguments, loader.Argument{
			Name:  args[i].(string),
			Value: value.FromAny(args[i+1]),
		})
	}
	return s
}

func TestClusterSupports(t *testing.T) {
	c := pseudo.NewDelayCommands()
	assert.Equal(t, "DelayCommands", c.Name())
	assert.True(t, c.Supports("WaitForMs"))
	assert.False(t, c.Supports("WaitForCommissionee"))
	assert.Equal(t, []string{"WaitForMs"}, c.Commands())

	_, _, err := c.Execute(context.Background(), step("DelayCommands", "Sleep"))
	assert.ErrorIs(t, err, pseudo.ErrUnsupportedCommand)
}

func TestWaitForMs(t *testing.T) {
	c := pseudo.NewDelayCommands()

	start := time.Now()
	responses, _, err := c.Execute(context.Background(), step("DelayCommands", "WaitForMs", "ms", 20))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].IsError())
	assert.Equal(t, "WaitForMs", responses[0].Command)
}

func TestWaitForMsCanceled(t *testing.T) {
	c := pseudo.NewDelayCommands()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := c.Execute(ctx, step("DelayCommands", "WaitForMs", "ms", 60000))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForMsArgumentErrors(t *testing.T) {
	c := pseudo.NewDelayCommands()

	_, _, err := c.Execute(context.Background(), step("DelayCommands", "WaitForMs", "ms", "soon"))
	assert.ErrorContains(t, err, "DelayCommands.WaitForMs arguments")

	_, _, err = c.Execute(context.Background(), step("DelayCommands", "WaitForMs", "ms", 1, "seconds", 2))
	assert.ErrorContains(t, err, "seconds")
}

func TestLog(t *testing.T) {
	c := pseudo.NewLogCommands(nil)
	responses, logs, err := c.Execute(context.Background(), step("LogCommands", "Log", "message", "Commission the device"))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Len(t, logs, 1)
	assert.Equal(t, "LogCommands", logs[0].Module)
	assert.Equal(t, "Commission the device", logs[0].Message)
}

func TestUserPrompt(t *testing.T) {
	t.Run("expected value without prompter", func(t *testing.T) {
		c := pseudo.NewLogCommands(nil)
		responses, logs, err := c.Execute(context.Background(),
			step("LogCommands", "UserPrompt", "message", "Is the light on?", "expectedValue", "y"))
		require.NoError(t, err)
		require.True(t, responses[0].HasValue)
		assert.True(t, value.Equal(value.String("y"), responses[0].Value))
		assert.Equal(t, "prompt", logs[0].Level)
	})

	t.Run("prompter answer", func(t *testing.T) {
		var asked string
		c := pseudo.NewLogCommands(pseudo.PrompterFunc(func(_ context.Context, message string) (string, error) {
			asked = message
			return "n", nil
		}))
		responses, _, err := c.Execute(context.Background(),
			step("LogCommands", "UserPrompt", "message", "Is the light on?", "expectedValue", "y"))
		require.NoError(t, err)
		assert.Equal(t, "Is the light on?", asked)
		assert.True(t, value.Equal(value.String("n"), responses[0].Value))
	})

	t.Run("prompter error", func(t *testing.T) {
		closed := errors.New("stdin closed")
		c := pseudo.NewLogCommands(pseudo.PrompterFunc(func(context.Context, string) (string, error) {
			return "", closed
		}))
		_, _, err := c.Execute(context.Background(), step("LogCommands", "UserPrompt", "message", "?"))
		assert.ErrorIs(t, err, closed)
	})

	t.Run("no expected value", func(t *testing.T) {
		c := pseudo.NewLogCommands(nil)
		responses, _, err := c.Execute(context.Background(), step("LogCommands", "UserPrompt", "message", "Press enter"))
		require.NoError(t, err)
		assert.False(t, responses[0].HasValue)
	})
}

type mockAccessory struct{ mock.Mock }

func (m *mockAccessory) Start(ctx context.Context, opts pseudo.StartOptions) error {
	return m.Called(opts).Error(0)
}

func (m *mockAccessory) Stop(ctx context.Context, key string) error {
	return m.Called(key).Error(0)
}

func (m *mockAccessory) Reboot(ctx context.Context, key string) error {
	return m.Called(key).Error(0)
}

func (m *mockAccessory) FactoryReset(ctx context.Context, key string) error {
	return m.Called(key).Error(0)
}

func TestSystemCommandsStart(t *testing.T) {
	acc := &mockAccessory{}
	acc.On("Start", mock.MatchedBy(func(o pseudo.StartOptions) bool {
		return o.RegisterKey == "default" && o.Discriminator != nil && *o.Discriminator == 1234 &&
			o.KVS == "/tmp/kvs" && o.Port == nil
	})).Return(nil).Once()

	c := pseudo.NewSystemCommands(acc)
	responses, _, err := c.Execute(context.Background(),
		step("SystemCommands", "Start", "discriminator", 1234, "kvs", "/tmp/kvs"))
	require.NoError(t, err)
	assert.False(t, responses[0].IsError())
	acc.AssertExpectations(t)
}

func TestSystemCommandsKeyed(t *testing.T) {
	for _, command := range []string{"Stop", "Reboot", "FactoryReset"} {
		t.Run(command, func(t *testing.T) {
			acc := &mockAccessory{}
			acc.On(command, "bridge").Return(nil).Once()

			c := pseudo.NewSystemCommands(acc)
			_, _, err := c.Execute(context.Background(), step("SystemCommands", command, "registerKey", "bridge"))
			require.NoError(t, err)
			acc.AssertExpectations(t)
		})
	}
}

func TestSystemCommandsError(t *testing.T) {
	crashed := errors.New("accessory exited")
	acc := &mockAccessory{}
	acc.On("Reboot", "default").Return(crashed)

	c := pseudo.NewSystemCommands(acc)
	_, _, err := c.Execute(context.Background(), step("SystemCommands", "Reboot"))
	assert.ErrorIs(t, err, crashed)
}

func TestSystemCommandsWithoutAccessory(t *testing.T) {
	c := pseudo.NewSystemCommands(nil)
	responses, logs, err := c.Execute(context.Background(), step("SystemCommands", "Reboot"))
	require.NoError(t, err)
	assert.False(t, responses[0].IsError())
	require.Len(t, logs, 1)
	assert.Equal(t, "Reboot ignored: no accessory configured", logs[0].Message)
}

type staticBrowser struct {
	services []*discovery.CommissionableService
}

func (b *staticBrowser) BrowseCommissionable(ctx context.Context) (<-chan *discovery.CommissionableService, error) {
	out := make(chan *discovery.CommissionableService)
	go func() {
		defer close(out)
		for _, svc := range b.services {
			select {
			case out <- svc:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

func (b *staticBrowser) Stop() {}

func TestDiscoveryCommands(t *testing.T) {
	browser := &staticBrowser{services: []*discovery.CommissionableService{{
		InstanceName:      "ABCDEF0123456789",
		Host:              "device.local.",
		Port:              5540,
		Addresses:         []string{"192.168.1.20", "fe80::1"},
		LongDiscriminator: 3840,
		VendorID:          65521,
		ProductID:         32769,
		CommissioningMode: discovery.CommissioningModeBasic,
	}}}
	c := pseudo.NewDiscoveryCommands(browser, 50*time.Millisecond)

	t.Run("short discriminator", func(t *testing.T) {
		responses, _, err := c.Execute(context.Background(),
			step("DiscoveryCommands", "FindCommissionableByShortDiscriminator", "value", 15))
		require.NoError(t, err)
		require.True(t, responses[0].HasValue)
		m, ok := responses[0].Value.AsMap()
		require.True(t, ok)
		got, _ := m.Get("longDiscriminator")
		assert.True(t, value.Equal(value.Uint(3840), got))
		ips, _ := m.Get("numIPs")
		assert.True(t, value.Equal(value.Uint(2), ips))
	})

	t.Run("long discriminator not found", func(t *testing.T) {
		responses, logs, err := c.Execute(context.Background(),
			step("DiscoveryCommands", "FindCommissionableByLongDiscriminator", "value", 1))
		require.NoError(t, err)
		assert.Equal(t, "FAILURE", responses[0].Error)
		assert.Len(t, logs, 1)
	})

	t.Run("any", func(t *testing.T) {
		responses, _, err := c.Execute(context.Background(), step("DiscoveryCommands", "FindCommissionable"))
		require.NoError(t, err)
		assert.True(t, responses[0].HasValue)
	})

	t.Run("unexpected argument", func(t *testing.T) {
		_, _, err := c.Execute(context.Background(), step("DiscoveryCommands", "FindCommissionable", "value", 1))
		assert.Error(t, err)
	})
}

func TestClustersRegister(t *testing.T) {
	clusters := pseudo.Clusters(pseudo.Config{})
	names := make([]string, 0, len(clusters))
	for _, c := range clusters {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"DelayCommands", "LogCommands", "SystemCommands"}, names)

	withBrowser := pseudo.Clusters(pseudo.Config{Browser: &staticBrowser{}})
	assert.Len(t, withBrowser, 4)

	r := engine.New(nil)
	pseudo.Register(r, clusters...)
	res := r.RunTest(context.Background(), &loader.TestFile{
		Name:  "pseudo",
		Steps: []*loader.Step{step("LogCommands", "Log", "message", "hello")},
	})
	// Without an adapter the runner reports steps as unknown.
	assert.True(t, res.Passed)
}
