package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"garcon/alerts"
	"garcon/audio"
	"garcon/config"
	"garcon/cue"
	"garcon/log"
	"garcon/orders"
	"garcon/permission"
	"garcon/session"
	"garcon/transcriber"
)

var version = "dev"

func main() {
	configFlag := flag.String("config", "", "Path to YAML config file")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	providerFlag := flag.String("provider", "", "Transcription provider: auto, deepgram, groq, openai")
	langFlag := flag.String("lang", "", "Language code for transcription (e.g., en, es, fr)")
	logPathFlag := flag.String("logpath", "", "Log directory path (default: OS-specific location)")
	ordersFlag := flag.Int("orders", 0, "Print the N most recent orders and exit")
	tableFlag := flag.String("table", "", "Table identifier attached to confirmed orders")
	seatFlag := flag.String("seat", "", "Seat identifier attached to confirmed orders")
	residentFlag := flag.String("resident", "", "Resident name attached to confirmed orders")
	quietFlag := flag.Bool("quiet", false, "Disable audible cues")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *quietFlag {
		cue.Disable()
	}

	if *versionFlag {
		fmt.Printf("garcon %s\n", version)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *providerFlag != "" {
		cfg.Transcriber.Provider = *providerFlag
	}
	if *langFlag != "" {
		cfg.Transcriber.Language = *langFlag
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}

	logFlagPath := *logPathFlag
	if logFlagPath == "" {
		logFlagPath = cfg.LogPath
	}
	logDir, err := log.ResolveDir(logFlagPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving log path: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if *ordersFlag > 0 {
		if err := printRecentOrders(cfg, *ordersFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *setupFlag, orders.Context{
		Table:    *tableFlag,
		Seat:     *seatFlag,
		Resident: *residentFlag,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, setup bool, orderCtx orders.Context) error {
	audioCtx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer audioCtx.Close()

	device, err := resolveDevice(audioCtx, cfg, setup)
	if err != nil {
		return err
	}

	captureCfg := audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   uint32(cfg.Audio.Channels),
		Gain:       int32(cfg.Audio.Gain),
	}
	gate := permission.NewGate(audioCtx, device, captureCfg)
	defer gate.Close()

	recorder := audio.NewRecorder(audioCtx, audio.RecorderConfig{
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		Gain:             cfg.Audio.Gain,
		ChunkInterval:    time.Duration(cfg.Audio.ChunkIntervalMS) * time.Millisecond,
		FormatCandidates: cfg.Audio.FormatCandidates,
		Device:           device,
	})

	trans, err := buildTranscriber(cfg)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildOrderSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	ctrl := session.NewController(
		gate,
		recorder,
		trans,
		alerts.NewScanner(cfg.Alerts),
		sinks,
		session.Config{
			MinDuration: time.Duration(cfg.Session.MinDurationMS) * time.Millisecond,
			MaxDuration: time.Duration(cfg.Session.MaxDurationMS) * time.Millisecond,
			Tick:        time.Duration(cfg.Session.TickMS) * time.Millisecond,
			ErrorReset:  time.Duration(cfg.Session.ErrorResetMS) * time.Millisecond,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
		},
	)
	defer ctrl.Close()

	format := cfg.Audio.FormatCandidates[0]
	log.SessionStart(trans.Name(), format)

	p := newTUIProgram(ctrl, orderCtx, modeLineText(trans, cfg, format), deviceLineText(device))
	go forwardEvents(p, ctrl.Events())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		ctrl.Close()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

func resolveDevice(audioCtx audio.Context, cfg config.Config, setup bool) (*audio.DeviceInfo, error) {
	if setup {
		device, err := audio.SelectDevice(audioCtx)
		if err != nil {
			return nil, fmt.Errorf("selecting device: %w", err)
		}
		return device, nil
	}
	if cfg.Audio.Device == "" {
		return nil, nil
	}
	device, err := audio.FindDevice(audioCtx, cfg.Audio.Device)
	if err != nil {
		return nil, fmt.Errorf("finding device %q: %w", cfg.Audio.Device, err)
	}
	if device == nil {
		log.Warnf("device %q not found, using system default", cfg.Audio.Device)
	}
	return device, nil
}

func buildTranscriber(cfg config.Config) (transcriber.Transcriber, error) {
	if cfg.Transcriber.Provider == "fake" {
		// Dry-run mode for floor rehearsals without an API key.
		return &transcriber.Fake{Text: "(rehearsal transcription)"}, nil
	}
	trans, err := transcriber.New(cfg.Transcriber.Provider, cfg.Transcriber.Language)
	if err != nil {
		return nil, fmt.Errorf("configuring transcription: %w", err)
	}
	return trans, nil
}

func buildOrderSinks(cfg config.Config) (orders.Fanout, func(), error) {
	var sinks orders.Fanout
	var closers []func()

	if cfg.Orders.StorePath != "" {
		store, err := orders.OpenStore(context.Background(), cfg.Orders.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening order store: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, func() { store.Close() })
	}

	if cfg.Orders.NATSURL != "" {
		pub, err := orders.ConnectKitchen(cfg.Orders.NATSURL, cfg.Orders.Subject)
		if err != nil {
			// The audit trail still works without the bus; degrade
			// rather than refuse to take orders.
			log.Errorf("kitchen bus unavailable: %v", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
		}
	}

	if len(sinks) == 0 {
		return nil, nil, fmt.Errorf("no order sink available")
	}

	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}
	return sinks, closeAll, nil
}

func printRecentOrders(cfg config.Config, n int) error {
	if cfg.Orders.StorePath == "" {
		return fmt.Errorf("no order store configured")
	}
	store, err := orders.OpenStore(context.Background(), cfg.Orders.StorePath)
	if err != nil {
		return fmt.Errorf("opening order store: %w", err)
	}
	defer store.Close()

	recent, err := store.Recent(context.Background(), n)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Println("No orders recorded yet.")
		return nil
	}
	for _, d := range recent {
		line := fmt.Sprintf("%s\t%s", d.CreatedAt.Local().Format("2006-01-02 15:04:05"), d.Text)
		if d.Table != "" {
			line += "\t(table " + d.Table
			if d.Seat != "" {
				line += ", seat " + d.Seat
			}
			line += ")"
		}
		if len(d.Alerts) > 0 {
			line += "\t[" + strings.Join(d.Alerts, ",") + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func modeLineText(trans transcriber.Transcriber, cfg config.Config, format string) string {
	providerLabel := trans.Name()
	if cfg.Transcriber.Language != "" {
		providerLabel += " (" + cfg.Transcriber.Language + ")"
	}
	return fmt.Sprintf("[%s | %s]", format, providerLabel)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}
