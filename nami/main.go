//go:build tinygo

package main

import (
	"context"
	"log/slog"
	"machine"
	"runtime"
	"time"

	"github.com/davide97g/nami/nami/config"
	"github.com/davide97g/nami/nami/cyw43439"
	"github.com/davide97g/nami/nami/device"
	"github.com/davide97g/nami/nami/link"
	"github.com/davide97g/nami/nami/session"
	"github.com/davide97g/nami/nami/store"
	"github.com/davide97g/nami/nami/surface"
	"github.com/davide97g/nami/nami/sysinfo"
	"tinygo.org/x/drivers/ssd1306"
)

const (
	panelAddr = 0x3C
	loopPause = 10 * time.Millisecond
)

func main() {
	// Give the serial monitor a moment to attach before the first logs.
	time.Sleep(time.Second)
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		printErrForever(logger, "invalid config", slog.Any("reason", err))
	}

	err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400000,
		SDA:       machine.GP4,
		SCL:       machine.GP5,
	})
	if err != nil {
		printErrForever(logger, "configure I2C", slog.Any("reason", err))
	}
	panel := ssd1306.NewI2C(machine.I2C0)
	panel.Configure(ssd1306.Config{
		Address: panelAddr,
		Width:   surface.Width,
		Height:  surface.Height,
	})
	panel.ClearDisplay()
	screen := surface.New(panel)

	stack, err := cyw43439.NewStack(cyw43439.DefaultWifiConfig(), cyw43439.StackConfig{
		Hostname:    cfg.Hostname,
		MaxTCPPorts: 2,
		Logger:      logger,
	})
	if err != nil {
		printErrForever(logger, "init radio", slog.Any("reason", err))
	}

	ep, err := session.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		printErrForever(logger, "parse endpoint", slog.Any("reason", err))
	}

	deps := device.Deps{
		Config:    cfg,
		Canvas:    screen,
		Radio:     stack,
		Transport: session.ForEndpoint(ep, cfg.Hostname, stack.DialContext, logger),
		Info:      sysinfo.ConnGetter{Dial: stack.DialContext, Timeout: 5 * time.Second},
		Logger:    logger,
	}
	if cfg.Persist {
		st, err := store.New(machine.Flash, true)
		if err != nil {
			// Run without persistence rather than not at all.
			logger.Error("store:mount-failed", slog.String("err", err.Error()))
		} else {
			deps.Store = st
		}
	}

	dev, err := device.New(deps)
	if err != nil {
		printErrForever(logger, "build device", slog.Any("reason", err))
	}

	ctx := context.Background()
	dev.Boot(ctx)

	ledOn := false
	for {
		dev.Step(ctx, time.Now())

		up := dev.Link().State() == link.Up
		if up != ledOn {
			if err := stack.LED(up); err != nil {
				logger.Warn("led:set-failed", slog.String("err", err.Error()))
			}
			ledOn = up
		}

		runtime.Gosched()
		time.Sleep(loopPause)
	}
}

// printErrForever prints a string to serial @ 1hz. It
// blocks forever.
func printErrForever(logger *slog.Logger, msg string, args ...any) {
	for {
		logger.Error(msg, args...)
		time.Sleep(time.Second)
	}
}
