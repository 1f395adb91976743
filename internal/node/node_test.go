package node

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LeoCommon/fieldnode/internal/config"
	"github.com/LeoCommon/fieldnode/pkg/clock"
	"github.com/LeoCommon/fieldnode/pkg/log"
	"github.com/LeoCommon/fieldnode/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	gga = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"
	rmc = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n"
)

func loadConfig(t *testing.T, content string) *config.Manager {
	path := filepath.Join(t.TempDir(), config.ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m := config.NewManager()
	require.NoError(t, m.Load(path, false))
	return m
}

func sigfoxModem(written []byte) []byte {
	if strings.HasPrefix(string(written), "AT") {
		return []byte("OK\r\n")
	}
	return nil
}

func loraModem(written []byte) []byte {
	switch strings.TrimSuffix(string(written), "\r\n") {
	case "sys get ver":
		return []byte("RN2483 1.0.1 Dec 15 2015 09:38:09\r\n")
	case "sys get hweui":
		return []byte("0004A30B001A2B3C\r\n")
	}
	return []byte("ok\r\n")
}

func TestReportOverSigfox(t *testing.T) {
	log.Init(true)

	conf := loadConfig(t, "[node]\nreport_interval = \"1m\"\nreport_via = \"sigfox\"\n")

	gps := transport.NewFake()
	sfx := transport.NewFake()
	sfx.Responder = sigfoxModem

	clk := clock.NewManual(0)
	clk.SetStep(time.Millisecond)

	app := New(conf, clk, Devices{GPS: gps, Sigfox: sfx})
	app.Start()
	assert.Equal(t, "AT\r\n", sfx.TakeWritten())

	app.Tick()
	assert.Equal(t, 0, app.Reports(), "no fix yet")

	gps.InjectString(gga + rmc)
	app.Tick()
	require.Equal(t, 1, app.Reports())

	fix := app.GPS.Fix()
	want := "AT$SF=" + EncodeReport(fix).AsHex(0).String() + "\n"
	assert.Equal(t, want, sfx.TakeWritten())

	app.Tick()
	assert.Equal(t, 1, app.Reports(), "report interval not elapsed")
	assert.Empty(t, sfx.Written())

	clk.Advance(time.Minute)
	app.Tick()
	assert.Equal(t, 2, app.Reports())
}

func TestMinDistanceSkipsStationaryReports(t *testing.T) {
	log.Init(true)

	conf := loadConfig(t, "[node]\nreport_interval = \"1s\"\nmin_distance = 50.0\n")

	gps := transport.NewFake()
	sfx := transport.NewFake()
	sfx.Responder = sigfoxModem

	clk := clock.NewManual(0)
	clk.SetStep(time.Millisecond)

	app := New(conf, clk, Devices{GPS: gps, Sigfox: sfx})

	gps.InjectString(gga + rmc)
	app.Tick()
	require.Equal(t, 1, app.Reports())

	clk.Advance(2 * time.Second)
	app.Tick()
	assert.Equal(t, 1, app.Reports())

	gps.InjectString("$GPRMC,123520,A,4808.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6F\r\n")
	clk.Advance(2 * time.Second)
	app.Tick()
	assert.Equal(t, 2, app.Reports())
}

func TestReportOverLoRa(t *testing.T) {
	log.Init(true)

	conf := loadConfig(t, `
[node]
report_via = "lora"

[sigfox]
enabled = false

[lora]
enabled = true
app_eui = "70B3D57ED0000001"
app_key = "00112233445566778899AABBCCDDEEFF"
`)

	gps := transport.NewFake()
	lr := transport.NewFake()
	lr.Responder = loraModem

	clk := clock.NewManual(0)
	clk.SetStep(time.Millisecond)

	app := New(conf, clk, Devices{GPS: gps, LoRa: lr})
	app.Start()
	assert.Contains(t, lr.TakeWritten(), "mac join otaa\r\n")
	require.True(t, app.LoRa.Pending())

	gps.InjectString(gga + rmc)
	app.Tick()
	assert.Equal(t, 0, app.Reports(), "join still pending")

	lr.InjectString("accepted\r\n")
	app.Tick()
	require.Equal(t, 1, app.Reports())

	fix := app.GPS.Fix()
	assert.Equal(t, "mac tx uncnf 1 "+EncodeReport(fix).AsHex(0).String()+"\r\n", lr.TakeWritten())

	lr.InjectString("mac_rx 1 CAFE\r\n")
	app.Tick()
	assert.False(t, app.LoRa.HasPendingDownlink(), "downlinks are consumed by the node")
}

func TestDeniedJoinBacksOff(t *testing.T) {
	log.Init(true)

	conf := loadConfig(t, `
[node]
report_via = "lora"

[sigfox]
enabled = false

[lora]
enabled = true
rejoin_interval = "1m"
app_eui = "70B3D57ED0000001"
app_key = "00112233445566778899AABBCCDDEEFF"
`)

	gps := transport.NewFake()
	lr := transport.NewFake()
	lr.Responder = func(written []byte) []byte {
		if strings.TrimSuffix(string(written), "\r\n") == "mac join otaa" {
			return []byte("ok\r\ndenied\r\n")
		}
		return loraModem(written)
	}

	clk := clock.NewManual(0)
	clk.SetStep(time.Millisecond)

	app := New(conf, clk, Devices{GPS: gps, LoRa: lr})
	app.Start()

	gps.InjectString(gga + rmc)
	for i := 0; i < 10; i++ {
		app.Tick()
	}
	assert.False(t, app.LoRa.IsConnected())
	assert.Equal(t, 1, strings.Count(lr.TakeWritten(), "mac join otaa"), "no rejoin before the interval elapsed")

	clk.Advance(time.Minute)
	for i := 0; i < 10; i++ {
		app.Tick()
	}
	assert.Equal(t, 1, strings.Count(lr.TakeWritten(), "mac join otaa"), "one rejoin per interval")
	assert.Equal(t, 0, app.Reports())
}

func TestNoUplinkConfigured(t *testing.T) {
	log.Init(true)

	conf := loadConfig(t, "[node]\nreport_via = \"none\"\n")
	gps := transport.NewFake()

	app := New(conf, clock.NewManual(0), Devices{GPS: gps})
	gps.InjectString(gga + rmc)
	app.Tick()

	assert.Equal(t, 0, app.Reports())
	assert.True(t, app.GPS.HasFix())
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	log.Init(true)
	t.Setenv("NOTIFY_SOCKET", "")

	conf := loadConfig(t, "[node]\npoll_interval = \"1ms\"\n")
	gps := transport.NewFake()
	gps.InjectString(gga + rmc)

	app := New(conf, clock.System(), Devices{GPS: gps})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- app.Run(ctx)
	}()

	require.Eventually(t, app.GPS.HasFix, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("node loop did not stop")
	}

	app.Shutdown()
}
