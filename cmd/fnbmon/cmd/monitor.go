package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fnb-tools/fnbmon/internal/alerts"
	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/meter/ble"
	"github.com/fnb-tools/fnbmon/internal/meter/usb"
	"github.com/fnb-tools/fnbmon/internal/session"
	"github.com/fnb-tools/fnbmon/internal/stats"
)

var (
	monitorMode     string
	monitorAddress  string
	monitorRecord   bool
	monitorName     string
	monitorDuration time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream live measurements from a connected meter",
	Long: `Connects to a meter and prints live voltage, current and power
readings until interrupted. With --record the run is saved as a session
when monitoring stops.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if monitorDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, monitorDuration)
			defer cancel()
		}

		mode := meter.ConnectionMode(monitorMode)
		if monitorMode == "" {
			mode = meter.ConnectionMode(cfg.Device.Mode)
		}
		address := monitorAddress
		if address == "" {
			address = cfg.Device.Address
		}

		usbTransport := usb.New(usb.WithLogger(logger))
		bleTransport := ble.New(ble.WithLogger(logger), ble.WithAddress(address))

		options := []func(*meter.Manager){meter.WithManagerLogger(logger)}
		if cfg.Device.BufferSize > 0 {
			options = append(options, meter.WithBufferSize(cfg.Device.BufferSize))
		}
		manager := meter.NewManager(usbTransport, bleTransport, options...)

		if err := manager.Connect(ctx, mode); err != nil {
			return err
		}
		defer disconnect(manager)

		status := manager.Status()
		fmt.Printf("Connected to %s over %s\n", deviceLabel(status.Device), status.ConnectionType)

		alertManager := alerts.New(
			alerts.WithLogger(logger),
			alerts.WithThresholds(cfg.Alerts.Thresholds),
			alerts.WithCallback(printAlert),
		)

		recorder := session.New(session.WithLogger(logger))
		if monitorRecord {
			if err := recorder.Start(monitorName, status.ConnectionType); err != nil {
				return err
			}
			fmt.Printf("Recording session %q\n", recorder.Current().Name)
		}

		sub := manager.Subscribe(0)
		defer manager.Unsubscribe(sub)

		if err := manager.Start(ctx); err != nil {
			return err
		}
		defer manager.Stop()

		tracker := stats.New()
		interval := manager.SampleInterval()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return finishMonitor(manager, recorder, tracker)

			case r, ok := <-sub.C:
				if !ok {
					return finishMonitor(manager, recorder, tracker)
				}
				tracker.Update(r, interval)
				if cfg.Alerts.Enabled {
					alertManager.Check(r)
				}
				if monitorRecord {
					recorder.Add(r)
				}

			case <-ticker.C:
				if r, ok := manager.Latest(); ok {
					printReading(r, tracker.Snapshot())
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVarP(&monitorMode, "mode", "m", "", "connection mode (auto, usb, bluetooth)")
	monitorCmd.Flags().StringVarP(&monitorAddress, "address", "a", "", "Bluetooth address of the meter")
	monitorCmd.Flags().BoolVarP(&monitorRecord, "record", "r", false, "record the run as a session")
	monitorCmd.Flags().StringVarP(&monitorName, "name", "n", "", "session name (default derived from start time)")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "stop after this long (0 = until interrupted)")
}

func finishMonitor(manager *meter.Manager, recorder *session.Recorder, tracker *stats.Tracker) error {
	manager.Stop()
	snapshot := tracker.Snapshot()

	fmt.Println()
	printSnapshot(os.Stdout, snapshot)

	if !monitorRecord {
		return nil
	}
	sess, err := recorder.Stop(snapshot)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	id, err := store.SaveSession(context.Background(), &sess)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	fmt.Printf("Saved session %q (%d readings) as #%d\n", sess.Name, len(sess.Readings), id)
	return nil
}

func printReading(r meter.Reading, snapshot stats.Snapshot) {
	protocol := ""
	if r.Protocol != nil {
		protocol = "  " + r.Protocol.Name
	}
	fmt.Printf("%s  %7.4f V  %7.4f A  %7.3f W  %8.4f Wh%s\n",
		r.Timestamp.Format("15:04:05"),
		r.Voltage, r.Current, r.Power, snapshot.EnergyWh, protocol)
}

func printAlert(a alerts.Alert) {
	fmt.Fprintf(os.Stderr, "ALERT [%s] %s\n", a.Level, a.Message)
}

func printSnapshot(w io.Writer, s stats.Snapshot) {
	if s.Samples == 0 {
		fmt.Fprintln(w, "No samples collected")
		return
	}
	fmt.Fprintf(w, "Samples:  %d over %s\n", s.Samples, stats.FormatDuration(s.Duration))
	fmt.Fprintf(w, "Voltage:  %.4f / %.4f / %.4f V (min/avg/max)\n", s.Voltage.Min, s.Voltage.Avg, s.Voltage.Max)
	fmt.Fprintf(w, "Current:  %.4f / %.4f / %.4f A\n", s.Current.Min, s.Current.Avg, s.Current.Max)
	fmt.Fprintf(w, "Power:    %.3f / %.3f / %.3f W\n", s.Power.Min, s.Power.Avg, s.Power.Max)
	fmt.Fprintf(w, "Energy:   %.4f Wh\n", s.EnergyWh)
	fmt.Fprintf(w, "Capacity: %.1f mAh\n", s.CapacityAh*1000)
}

func deviceLabel(info meter.DeviceInfo) string {
	switch {
	case info.Model != "":
		return info.Model
	case info.Name != "":
		return info.Name
	default:
		return "meter"
	}
}

func disconnect(manager *meter.Manager) {
	if err := manager.Disconnect(); err != nil {
		logger.Error("disconnecting", "error", err)
	}
}
